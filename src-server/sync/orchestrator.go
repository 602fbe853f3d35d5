package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"remcal/src-server/caldav"
	"remcal/src-server/ical"
	"remcal/src-server/model"
	"remcal/src-server/notify"
	"remcal/src-server/utils"

	"github.com/google/uuid"
)

// Orchestrator runs sync passes. Safe for concurrent use as long as the
// Registry serializes passes per user, which it does.
type Orchestrator struct {
	store     Store
	newClient ClientFactory
	notifier  notify.Notifier
	parser    *ical.Parser
	metrics   *utils.Metric
}

// NewOrchestrator wires a pass runner. notifier and metrics may be nil.
func NewOrchestrator(store Store, newClient ClientFactory, notifier notify.Notifier, metrics *utils.Metric) *Orchestrator {
	return &Orchestrator{
		store:     store,
		newClient: newClient,
		notifier:  notifier,
		parser:    ical.NewParser(),
		metrics:   metrics,
	}
}

func (o *Orchestrator) notify(userID string, ref string, change notify.ChangeType) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(userID, ref, change)
}

// Pass runs one full sync cycle for one user. Returns true when the cycle
// ran to the end, false when it could not start or authentication failed.
func (o *Orchestrator) Pass(ctx context.Context, userID string, opts Options) bool {
	startTimer := time.Now()

	connectionModel, err := o.store.GetServerConnection(ctx, userID)
	switch {
	case err != nil:
		slog.Error("(*Orchestrator).Pass: can't get server connection", "userID", userID, "error", err)
		return false
	case connectionModel == nil:
		return false
	}

	client, err := o.newClient(connectionModel.ServerURL, connectionModel.Username, connectionModel.Password)
	if err == nil {
		err = client.Login(ctx)
	}
	if err != nil {
		slog.Error("(*Orchestrator).Pass: can't authenticate", "userID", userID, "error", err)
		connectionModel.Status = model.CONNECTION_STATUS_ERROR
		if err := o.store.UpdateServerConnection(ctx, connectionModel); err != nil {
			slog.Error("(*Orchestrator).Pass: can't mark connection errored", "userID", userID, "error", err)
		}
		return false
	}

	remoteCalendars, err := client.FetchCalendars(ctx)
	if err != nil {
		// the account itself is fine, leave the connection status alone
		slog.Error("(*Orchestrator).Pass: can't list remote calendars", "userID", userID, "error", err)
		return false
	}

	calendarModels, err := o.reconcileCalendars(ctx, userID, remoteCalendars)
	if err != nil {
		slog.Error("(*Orchestrator).Pass: can't reconcile calendars", "userID", userID, "error", err)
		return false
	}

	for i := range calendarModels {
		calendarModel := &calendarModels[i]
		if ctx.Err() != nil {
			break
		}
		if !calendarModel.Remote() {
			continue
		}
		if opts.CalendarID != "" && calendarModel.ID != opts.CalendarID {
			continue
		}

		if err := o.pullCalendar(ctx, client, userID, calendarModel, opts); err != nil {
			slog.Error("(*Orchestrator).Pass: pull failed", "userID", userID, "calendarID", calendarModel.ID, "error", err)
			continue
		}

		pushedUpdate, err := o.pushCalendar(ctx, client, userID, calendarModel)
		if err != nil {
			slog.Error("(*Orchestrator).Pass: push failed", "userID", userID, "calendarID", calendarModel.ID, "error", err)
			continue
		}
		if pushedUpdate {
			// pick up whatever the server rewrote while storing our copies
			if err := o.pullCalendar(ctx, client, userID, calendarModel, opts); err != nil {
				slog.Error("(*Orchestrator).Pass: follow-up pull failed", "userID", userID, "calendarID", calendarModel.ID, "error", err)
				continue
			}
		}

		// stamp the cycle; the ctag is the server's change marker, the
		// timestamp is the fallback for servers that don't send one
		syncToken := remoteCTag(remoteCalendars, calendarModel.URL)
		if syncToken == "" {
			syncToken = strconv.FormatInt(time.Now().Unix(), 10)
		}
		calendarModel.SyncToken = syncToken
		if err := o.store.UpdateCalendar(ctx, calendarModel); err != nil {
			slog.Error("(*Orchestrator).Pass: can't stamp calendar", "userID", userID, "calendarID", calendarModel.ID, "error", err)
		}
	}

	if ctx.Err() != nil {
		return false
	}

	connectionModel.Status = model.CONNECTION_STATUS_CONNECTED
	connectionModel.LastSync = time.Now().Unix()
	if err := o.store.UpdateServerConnection(ctx, connectionModel); err != nil {
		slog.Error("(*Orchestrator).Pass: can't mark connection connected", "userID", userID, "error", err)
	}

	o.notify(userID, "", notify.CHANGE_SYNC_COMPLETED)
	if o.metrics != nil {
		o.metrics.SyncPassDuration <- float64(time.Since(startTimer).Microseconds())
	}
	return true
}

// reconcileCalendars folds the remote calendar list into the local one and
// returns the local list with the changes applied. Remote calendars match
// local ones by URL first, then by exact name for locals that have not been
// bound to a collection yet.
func (o *Orchestrator) reconcileCalendars(ctx context.Context, userID string, remoteCalendars []caldav.RemoteCalendar) ([]model.Calendar, error) {
	calendarModels, err := o.store.GetCalendars(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't get local calendars: %w", err)
	}

	byURL := make(map[string]*model.Calendar)
	byName := make(map[string]*model.Calendar)
	for i := range calendarModels {
		calendarModel := &calendarModels[i]
		if calendarModel.URL != "" {
			byURL[calendarModel.URL] = calendarModel
		} else if _, ok := byName[calendarModel.Name]; !ok {
			byName[calendarModel.Name] = calendarModel
		}
	}

	for _, remoteCalendar := range remoteCalendars {
		switch localCalendar, ok := byURL[remoteCalendar.URL]; {
		case ok:
			if localCalendar.Name == remoteCalendar.Name &&
				localCalendar.Color == remoteCalendar.Color {
				continue
			}
			localCalendar.Name = remoteCalendar.Name
			localCalendar.Color = remoteCalendar.Color
			if err := o.store.UpdateCalendar(ctx, localCalendar); err != nil {
				return nil, fmt.Errorf("can't update calendar %s: %w", localCalendar.ID, err)
			}
			o.notify(userID, localCalendar.ID, notify.CHANGE_CALENDAR_UPDATED)
		default:
			if localCalendar, ok := byName[remoteCalendar.Name]; ok && localCalendar.URL == "" {
				// a local-only calendar with the remote's name adopts the
				// collection instead of spawning a duplicate
				localCalendar.URL = remoteCalendar.URL
				localCalendar.Color = remoteCalendar.Color
				if err := o.store.UpdateCalendar(ctx, localCalendar); err != nil {
					return nil, fmt.Errorf("can't bind calendar %s: %w", localCalendar.ID, err)
				}
				o.notify(userID, localCalendar.ID, notify.CHANGE_CALENDAR_UPDATED)
				continue
			}

			newCalendar := model.Calendar{
				ID:      uuid.NewString(),
				UserID:  userID,
				Name:    remoteCalendar.Name,
				Color:   remoteCalendar.Color,
				URL:     remoteCalendar.URL,
				Enabled: true,
			}
			if err := o.store.CreateCalendar(ctx, &newCalendar); err != nil {
				return nil, fmt.Errorf("can't create calendar for %s: %w", remoteCalendar.URL, err)
			}
			calendarModels = append(calendarModels, newCalendar)
			o.notify(userID, newCalendar.ID, notify.CHANGE_CALENDAR_UPDATED)
		}
	}

	return calendarModels, nil
}

func remoteCTag(remoteCalendars []caldav.RemoteCalendar, calendarURL string) string {
	for _, remoteCalendar := range remoteCalendars {
		if remoteCalendar.URL == calendarURL {
			return remoteCalendar.CTag
		}
	}
	return ""
}

// pullCalendar folds one remote collection into the local store.
func (o *Orchestrator) pullCalendar(ctx context.Context, client Client, userID string, calendarModel *model.Calendar, opts Options) error {
	remoteObjects, err := client.FetchCalendarObjects(ctx, calendarModel.URL)
	if err != nil {
		return fmt.Errorf("can't fetch objects: %w", err)
	}

	eventModels, err := o.store.GetEvents(ctx, calendarModel.ID)
	if err != nil {
		return fmt.Errorf("can't get local events: %w", err)
	}
	localByUID := make(map[string]*model.Event, len(eventModels))
	for i := range eventModels {
		localByUID[eventModels[i].UID] = &eventModels[i]
	}

	seenUIDs := make(map[string]struct{}, len(remoteObjects))
	var pulled, repairs int

	for _, remoteObject := range remoteObjects {
		rec, parseErr := o.parser.ParseEvent(remoteObject.Data, remoteObject.ETag, remoteObject.URL)
		if parseErr != nil {
			// one broken object must not stall the collection
			slog.Warn("(*Orchestrator).pullCalendar: dropping unparseable object",
				"userID", userID,
				"objectURL", remoteObject.URL,
				"error", parseErr)
			continue
		}
		if rec.Repaired {
			repairs++
		}
		seenUIDs[rec.UID] = struct{}{}

		localEvent, exists := localByUID[rec.UID]
		switch {
		case !exists:
			if opts.PreserveLocalDeletes {
				// the object was deleted here; propagate the delete instead
				// of resurrecting it
				if err := client.DeleteCalendarObject(ctx, remoteObject.URL, remoteObject.ETag); err != nil {
					slog.Warn("(*Orchestrator).pullCalendar: can't propagate local delete",
						"userID", userID,
						"objectURL", remoteObject.URL,
						"error", err)
				}
				continue
			}
			eventModel := RecordToModel(rec, calendarModel.ID)
			eventModel.SyncStatus = model.SYNC_STATUS_SYNCED
			if err := o.store.CreateEvent(ctx, eventModel); err != nil {
				slog.Warn("(*Orchestrator).pullCalendar: can't create event",
					"userID", userID,
					"uid", rec.UID,
					"error", err)
				continue
			}
			pulled++
			o.notify(userID, rec.UID, notify.CHANGE_EVENT_CREATED)
		case localEvent.SyncStatus == model.SYNC_STATUS_PENDING ||
			localEvent.SyncStatus == model.SYNC_STATUS_ERROR:
			// a local edit is waiting to be pushed; refresh the etag only so
			// the push carries a current precondition
			if localEvent.ETag != remoteObject.ETag {
				if err := o.store.UpdateEventETag(ctx, localEvent.UID, remoteObject.ETag); err != nil {
					slog.Warn("(*Orchestrator).pullCalendar: can't refresh etag",
						"userID", userID,
						"uid", localEvent.UID,
						"error", err)
				}
			}
		default:
			if localEvent.ETag == remoteObject.ETag &&
				localEvent.SyncStatus == model.SYNC_STATUS_SYNCED {
				continue
			}
			eventModel := RecordToModel(rec, calendarModel.ID)
			eventModel.SyncStatus = model.SYNC_STATUS_SYNCED
			eventModel.CreatedAt = localEvent.CreatedAt
			eventModel.UpdatedAt = time.Now().Unix()
			if err := o.store.UpdateEvent(ctx, eventModel); err != nil {
				slog.Warn("(*Orchestrator).pullCalendar: can't update event",
					"userID", userID,
					"uid", rec.UID,
					"error", err)
				continue
			}
			pulled++
			o.notify(userID, rec.UID, notify.CHANGE_EVENT_UPDATED)
		}
	}

	// a synced record whose uid no longer exists remotely was deleted on the
	// server; records with unpushed edits stay
	if !opts.PreserveLocalEvents {
		for i := range eventModels {
			localEvent := &eventModels[i]
			if localEvent.SyncStatus != model.SYNC_STATUS_SYNCED {
				continue
			}
			if _, ok := seenUIDs[localEvent.UID]; ok {
				continue
			}
			if err := o.store.DeleteEvent(ctx, localEvent.UID); err != nil {
				slog.Warn("(*Orchestrator).pullCalendar: can't delete event",
					"userID", userID,
					"uid", localEvent.UID,
					"error", err)
				continue
			}
			o.notify(userID, localEvent.UID, notify.CHANGE_EVENT_DELETED)
		}
	}

	if o.metrics != nil {
		o.metrics.SyncEventsPulled <- float64(pulled)
		o.metrics.IcalRepairs <- float64(repairs)
	}
	return nil
}
