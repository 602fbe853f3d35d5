package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/uptrace/bun"
)

type EventUIDsCtxKeyType string

const EventUIDsCtxKey EventUIDsCtxKeyType = "event-uids"

type SyncStatusType string

const (
	// created locally, the remote has never seen the uid
	SYNC_STATUS_LOCAL = SyncStatusType("local")
	// local edit waiting to be pushed; pulls must not overwrite content
	SYNC_STATUS_PENDING = SyncStatusType("pending")
	// matches the remote copy as of the last pass
	SYNC_STATUS_SYNCED = SyncStatusType("synced")
	// last push attempt failed; retried on the next scheduled pass
	SYNC_STATUS_ERROR = SyncStatusType("error")
)

func (s SyncStatusType) Valid() bool {
	switch s {
	case SYNC_STATUS_LOCAL, SYNC_STATUS_PENDING, SYNC_STATUS_SYNCED, SYNC_STATUS_ERROR:
		return true
	}
	return false
}

// Event is one VEVENT record. The UID is the primary key and never changes
// for the lifetime of the row; remote reconciliation matches on it.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	UID         string `bun:"uid,pk"`              // required
	CalendarID  string `bun:"calendar_id,notnull"` // required
	Summary     string `bun:"summary,notnull"`     // required
	Description string `bun:"description"`
	Location    string `bun:"location"`
	Organizer   string `bun:"organizer"`

	StartDateUnixUTC int64  `bun:"start_date,notnull"` // required
	EndDateUnixUTC   int64  `bun:"end_date,notnull"`   // required
	AllDay           bool   `bun:"all_day"`
	Timezone         string `bun:"timezone"`
	RecurrenceRule   string `bun:"recurrence_rule"`
	Sequence         int    `bun:"sequence"`

	ETag    string `bun:"etag"`
	URL     string `bun:"url"`
	RawData string `bun:"raw_data"`

	SyncStatus      SyncStatusType `bun:"sync_status,notnull,type:varchar"`
	LastSyncAttempt int64          `bun:"last_sync_attempt"`

	// set once the reminder for the current start date went out
	NotificationSent bool `bun:"notification_sent"`

	CreatedAt int64 `bun:"created_at,notnull"`
	UpdatedAt int64 `bun:"updated_at"`

	Attendees []*Attendee `bun:"rel:has-many,join:uid=event_uid"`
	Resources []*Resource `bun:"rel:has-many,join:uid=event_uid"`
	Calendar  *Calendar   `bun:"rel:belongs-to,join:calendar_id=id"`
}

var _ bun.AfterDeleteHook = (*Event)(nil)

// Cleanup attendees, resources, and materialized occurrences. Expects the
// deleted event uid(s) injected via EventUIDsCtxKey.
func (e *Event) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Event).AfterDelete: db is nil")
	}

	eventUIDs := make([]string, 0)
	switch deletedEventUID := ctx.Value(EventUIDsCtxKey).(type) {
	case string:
		if deletedEventUID == "" {
			return fmt.Errorf("(*Event).AfterDelete: deletedEventUID is blank")
		}
		eventUIDs = append(eventUIDs, deletedEventUID)
	case []string:
		if len(deletedEventUID) == 0 {
			return nil
		}
		eventUIDs = append(eventUIDs, deletedEventUID...)
	case nil:
		return fmt.Errorf("(*Event).AfterDelete: event uid is nil")
	default:
		return fmt.Errorf("(*Event).AfterDelete: wrong deletedEventUID type | type=%T", deletedEventUID)
	}

	if _, err := query.DB().NewDelete().
		Model((*Attendee)(nil)).
		Where("event_uid IN (?)", bun.In(eventUIDs)).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Event).AfterDelete: can't delete attendees: %w", err)
	}

	if _, err := query.DB().NewDelete().
		Model((*Resource)(nil)).
		Where("event_uid IN (?)", bun.In(eventUIDs)).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Event).AfterDelete: can't delete resources: %w", err)
	}

	if _, err := query.DB().NewDelete().
		Model((*Occurrence)(nil)).
		Where("event_uid IN (?)", bun.In(eventUIDs)).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Event).AfterDelete: can't delete occurrences: %w", err)
	}

	return nil
}

// Upsert writes the event and rebuilds its materialized occurrences. The
// conflict target is the uid, so an existing row keeps its uid by
// construction.
func (e *Event) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case e.UID == "":
		return fmt.Errorf("(*Event).Upsert: event uid is blank")
	case e.CalendarID == "":
		return fmt.Errorf("(*Event).Upsert: calendar id is blank")
	case e.Summary == "":
		return fmt.Errorf("(*Event).Upsert: summary is blank")
	case e.StartDateUnixUTC == 0:
		return fmt.Errorf("(*Event).Upsert: start date is blank")
	case e.EndDateUnixUTC == 0:
		return fmt.Errorf("(*Event).Upsert: end date is blank")
	case e.StartDateUnixUTC > e.EndDateUnixUTC:
		return fmt.Errorf("(*Event).Upsert: start date must be before end date")
	}
	if e.URL != "" {
		if _, err := url.ParseRequestURI(e.URL); err != nil {
			return fmt.Errorf("(*Event).Upsert: url is invalid: %w", err)
		}
	}
	if e.SyncStatus == "" {
		e.SyncStatus = SYNC_STATUS_LOCAL
	}
	if !e.SyncStatus.Valid() {
		return fmt.Errorf("(*Event).Upsert: invalid sync status %q", e.SyncStatus)
	}

	calendarExist, err := db.NewSelect().
		Model((*Calendar)(nil)).
		Where("id = ?", e.CalendarID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Event).Upsert: can't check calendar: %w", err)
	}
	if !calendarExist {
		return fmt.Errorf("(*Event).Upsert: calendar id not found")
	}

	if _, err := db.NewInsert().
		Model(e).
		On("CONFLICT (uid) DO UPDATE").
		Set("calendar_id = EXCLUDED.calendar_id").
		Set("summary = EXCLUDED.summary").
		Set("description = EXCLUDED.description").
		Set("location = EXCLUDED.location").
		Set("organizer = EXCLUDED.organizer").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Set("all_day = EXCLUDED.all_day").
		Set("timezone = EXCLUDED.timezone").
		Set("recurrence_rule = EXCLUDED.recurrence_rule").
		Set("sequence = EXCLUDED.sequence").
		Set("etag = EXCLUDED.etag").
		Set("url = EXCLUDED.url").
		Set("raw_data = EXCLUDED.raw_data").
		Set("sync_status = EXCLUDED.sync_status").
		Set("last_sync_attempt = EXCLUDED.last_sync_attempt").
		Set("notification_sent = EXCLUDED.notification_sent").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Event).Upsert: %w", err)
	}

	// rebuild materialized occurrences
	if _, err := db.NewDelete().
		Model((*Occurrence)(nil)).
		Where("event_uid = ?", e.UID).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Event).Upsert: can't clear occurrences: %w", err)
	}

	if e.RecurrenceRule != "" {
		dates, err := ExpandRecurrence(e.StartDateUnixUTC, e.RecurrenceRule)
		if err != nil {
			// a rule the sanitizer let through but the engine refuses
			// must not block the write
			slog.Warn("(*Event).Upsert: recurrence expansion failed",
				"uid", e.UID,
				"rrule", e.RecurrenceRule,
				"error", err)
			dates = nil
		}
		for _, date := range dates {
			occurrenceModel := Occurrence{
				EventUID: e.UID,
				Date:     date,
			}
			if _, err := db.NewInsert().
				Model(&occurrenceModel).
				Exec(ctx); err != nil {
				return fmt.Errorf("(*Event).Upsert: can't insert occurrence: %w", err)
			}
		}
	}

	return nil
}
