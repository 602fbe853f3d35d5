package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"remcal/src-server/model"
)

const (
	DEFAULT_SYNC_INTERVAL   = 5 * time.Minute
	DEFAULT_GLOBAL_INTERVAL = 15 * time.Minute
)

// job is one user's sync state. All fields are guarded by Registry.mu
// except userID, which never changes.
type job struct {
	userID        string
	interval      time.Duration
	cancelTimer   func()
	running       bool
	lastSync      int64
	autoSync      bool
	stopRequested bool
	sessionCount  int

	// one queued force-refresh at most; a second request while one is
	// already waiting collapses into it
	queued     bool
	queuedOpts Options
}

// Registry drives sync passes. One job per user; a user's passes never
// overlap, no matter how many timers and manual triggers fire at once.
type Registry struct {
	mu   gosync.Mutex
	jobs map[string]*job

	orchestrator    *Orchestrator
	store           Store
	scheduler       Scheduler
	defaultInterval time.Duration
	globalInterval  time.Duration

	// reports users with a live websocket; used by the global task to keep
	// their jobs alive after their http sessions expire
	activeUserIDs func() []string

	globalCancel func()
	shutdown     bool
	wg           gosync.WaitGroup
}

type RegistryConfig struct {
	// per-user timer fallback for connections that don't set their own
	DefaultInterval time.Duration
	// cadence of the global catch-up & prune task
	GlobalInterval time.Duration
	ActiveUserIDs  func() []string
}

func NewRegistry(orchestrator *Orchestrator, store Store, scheduler Scheduler, cfg RegistryConfig) *Registry {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DEFAULT_SYNC_INTERVAL
	}
	if cfg.GlobalInterval <= 0 {
		cfg.GlobalInterval = DEFAULT_GLOBAL_INTERVAL
	}
	return &Registry{
		jobs:            make(map[string]*job),
		orchestrator:    orchestrator,
		store:           store,
		scheduler:       scheduler,
		defaultInterval: cfg.DefaultInterval,
		globalInterval:  cfg.GlobalInterval,
		activeUserIDs:   cfg.ActiveUserIDs,
	}
}

func (r *Registry) intervalFor(connectionModel *model.ServerConnection) time.Duration {
	if connectionModel != nil && connectionModel.SyncIntervalSeconds > 0 {
		return time.Duration(connectionModel.SyncIntervalSeconds) * time.Second
	}
	return r.defaultInterval
}

// callers hold r.mu
func (r *Registry) armTimerLocked(j *job) {
	if j.cancelTimer != nil {
		j.cancelTimer()
		j.cancelTimer = nil
	}
	if !j.autoSync || r.shutdown {
		return
	}
	userID := j.userID
	j.cancelTimer = r.scheduler.Every(j.interval, func() {
		r.SyncNow(context.Background(), userID, Options{})
	})
}

// SetupSyncForUser registers a login session against the user's job,
// re-arms the periodic timer from the connection's settings and kicks off
// an immediate pass in the background.
func (r *Registry) SetupSyncForUser(userID string, connectionModel *model.ServerConnection) {
	if connectionModel == nil {
		return
	}

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	j, ok := r.jobs[userID]
	if !ok {
		j = &job{userID: userID}
		r.jobs[userID] = j
	}
	j.sessionCount++
	j.stopRequested = false
	j.interval = r.intervalFor(connectionModel)
	j.autoSync = connectionModel.AutoSync
	r.armTimerLocked(j)
	r.mu.Unlock()

	go r.SyncNow(context.Background(), userID, Options{ForceRefresh: true})
}

// Reconfigure re-arms the user's job from freshly saved connection settings
// and kicks off an immediate pass. Unlike SetupSyncForUser it registers no
// login session, so a job created only by saving settings is still pruned
// once nobody is connected.
func (r *Registry) Reconfigure(userID string, connectionModel *model.ServerConnection) {
	if connectionModel == nil {
		return
	}

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	if j, ok := r.jobs[userID]; ok {
		j.stopRequested = false
		j.interval = r.intervalFor(connectionModel)
		j.autoSync = connectionModel.AutoSync
		r.armTimerLocked(j)
	}
	r.mu.Unlock()

	go r.SyncNow(context.Background(), userID, Options{ForceRefresh: true})
}

// HandleUserLogout drops one session from the user's job and tears the job
// down when it was the last one. A pass already in flight finishes; only
// its queued follow-up is cancelled.
func (r *Registry) HandleUserLogout(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[userID]
	if !ok {
		return
	}
	j.sessionCount--
	if j.sessionCount > 0 {
		return
	}
	j.stopRequested = true
	if j.cancelTimer != nil {
		j.cancelTimer()
		j.cancelTimer = nil
	}
	delete(r.jobs, userID)
}

// StartSync turns the periodic timer on. Returns false when the user has no
// connection configured.
func (r *Registry) StartSync(ctx context.Context, userID string) bool {
	j := r.ensureJob(ctx, userID)
	if j == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return false
	}
	j.autoSync = true
	j.stopRequested = false
	r.armTimerLocked(j)
	return true
}

// StopSync turns the periodic timer off. Manual SyncNow still works.
func (r *Registry) StopSync(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[userID]
	if !ok {
		return
	}
	j.autoSync = false
	j.stopRequested = true
	if j.cancelTimer != nil {
		j.cancelTimer()
		j.cancelTimer = nil
	}
}

// SyncNow runs a pass for the user right away. While a pass is already in
// flight a force refresh queues one follow-up; a plain request reports
// success without queueing, busy is not a failure. Returns false only when
// no connection is configured, during shutdown, or when the pass itself
// fails.
func (r *Registry) SyncNow(ctx context.Context, userID string, opts Options) bool {
	j := r.ensureJob(ctx, userID)
	if j == nil {
		return false
	}

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return false
	}
	if j.running {
		if opts.ForceRefresh {
			j.queued = true
			j.queuedOpts = opts
			r.mu.Unlock()
			return true
		}
		r.mu.Unlock()
		return true
	}
	j.running = true
	j.stopRequested = false
	// taken under the lock while shutdown is false, so Shutdown's Wait
	// never races a late Add
	r.wg.Add(1)
	r.mu.Unlock()

	return r.runPass(ctx, j, opts)
}

// runPass owns the job's running flag: it runs the requested pass, drains
// the queued follow-up if one arrived meanwhile, then releases the flag.
func (r *Registry) runPass(ctx context.Context, j *job, opts Options) bool {
	defer r.wg.Done()

	ok := r.orchestrator.Pass(ctx, j.userID, opts)
	if ok {
		r.mu.Lock()
		j.lastSync = time.Now().Unix()
		r.mu.Unlock()
	}

	for {
		r.mu.Lock()
		if !j.queued || j.stopRequested || r.shutdown {
			j.running = false
			r.mu.Unlock()
			return ok
		}
		queuedOpts := j.queuedOpts
		j.queued = false
		r.mu.Unlock()

		if r.orchestrator.Pass(ctx, j.userID, queuedOpts) {
			r.mu.Lock()
			j.lastSync = time.Now().Unix()
			r.mu.Unlock()
		}
	}
}

// ensureJob returns the user's job, lazily creating one from the stored
// connection for users who sync without a tracked login session. Returns
// nil when the user has no connection configured.
func (r *Registry) ensureJob(ctx context.Context, userID string) *job {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	if j, ok := r.jobs[userID]; ok {
		r.mu.Unlock()
		return j
	}
	r.mu.Unlock()

	connectionModel, err := r.store.GetServerConnection(ctx, userID)
	if err != nil {
		slog.Error("(*Registry).ensureJob: can't get server connection", "userID", userID, "error", err)
		return nil
	}
	if connectionModel == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil
	}
	if j, ok := r.jobs[userID]; ok {
		// another caller built it while we were reading the connection
		return j
	}
	j := &job{
		userID:   userID,
		interval: r.intervalFor(connectionModel),
		autoSync: connectionModel.AutoSync,
	}
	r.armTimerLocked(j)
	r.jobs[userID] = j
	return j
}

// Status reports the user's sync state. Users without a live job fall back
// to what the stored connection says.
func (r *Registry) Status(ctx context.Context, userID string) (Status, error) {
	r.mu.Lock()
	if j, ok := r.jobs[userID]; ok {
		status := Status{
			Configured: true,
			Syncing:    j.cancelTimer != nil,
			LastSync:   j.lastSync,
			Interval:   j.interval,
			InProgress: j.running,
			AutoSync:   j.autoSync,
		}
		r.mu.Unlock()
		return status, nil
	}
	r.mu.Unlock()

	connectionModel, err := r.store.GetServerConnection(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if connectionModel == nil {
		return Status{}, nil
	}
	return Status{
		Configured: true,
		LastSync:   connectionModel.LastSync,
		Interval:   r.intervalFor(connectionModel),
		AutoSync:   connectionModel.AutoSync,
	}, nil
}

// StartGlobalTask arms the catch-up timer: every tick it prunes jobs whose
// sessions are all gone and runs a pass for everyone still live.
func (r *Registry) StartGlobalTask() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown || r.globalCancel != nil {
		return
	}
	r.globalCancel = r.scheduler.Every(r.globalInterval, r.globalPass)
}

func (r *Registry) globalPass() {
	activeSet := make(map[string]struct{})
	if r.activeUserIDs != nil {
		for _, userID := range r.activeUserIDs() {
			activeSet[userID] = struct{}{}
		}
	}

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	userIDs := make([]string, 0, len(r.jobs))
	for userID, j := range r.jobs {
		if j.sessionCount <= 0 {
			if _, ok := activeSet[userID]; !ok {
				j.stopRequested = true
				if j.cancelTimer != nil {
					j.cancelTimer()
					j.cancelTimer = nil
				}
				delete(r.jobs, userID)
				continue
			}
		}
		userIDs = append(userIDs, userID)
	}
	r.mu.Unlock()

	for _, userID := range userIDs {
		r.SyncNow(context.Background(), userID, Options{})
	}
}

// Shutdown stops every timer, lets in-flight passes finish and blocks until
// they have.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	if r.globalCancel != nil {
		r.globalCancel()
		r.globalCancel = nil
	}
	for _, j := range r.jobs {
		j.stopRequested = true
		if j.cancelTimer != nil {
			j.cancelTimer()
			j.cancelTimer = nil
		}
	}
	r.mu.Unlock()

	r.wg.Wait()
}
