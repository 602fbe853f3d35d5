package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/uptrace/bun"
)

type DeletedCalendarIDsCtxKeyType string

const DeletedCalendarIDsCtxKey DeletedCalendarIDsCtxKeyType = "calendar-ids"

// Calendar is one collection of events. A blank URL means the calendar is
// local-only; a non-blank URL points at the remote CalDAV collection it
// mirrors.
type Calendar struct {
	bun.BaseModel `bun:"table:calendars"`

	ID        string `bun:"id,pk"`           // required
	UserID    string `bun:"user_id,notnull"` // required
	Name      string `bun:"name,notnull"`    // required
	Color     string `bun:"color"`
	URL       string `bun:"url"`
	SyncToken string `bun:"sync_token"`
	Enabled   bool   `bun:"enabled"`

	Events []*Event `bun:"rel:has-many,join:id=calendar_id"`
}

// Remote reports whether this calendar mirrors a CalDAV collection.
func (c *Calendar) Remote() bool {
	return c.URL != ""
}

var _ bun.AfterDeleteHook = (*Calendar)(nil)

// Cleanup events under the deleted calendars. Expects the deleted calendar
// id(s) injected via DeletedCalendarIDsCtxKey.
func (c *Calendar) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Calendar).AfterDelete: db is nil")
	}

	deletedCalendarIDs := make([]string, 0)
	switch deletedCalendarID := ctx.Value(DeletedCalendarIDsCtxKey).(type) {
	case string:
		if deletedCalendarID == "" {
			return fmt.Errorf("(*Calendar).AfterDelete: deletedCalendarID is blank")
		}
		deletedCalendarIDs = append(deletedCalendarIDs, deletedCalendarID)
	case []string:
		if len(deletedCalendarID) == 0 {
			return nil
		}
		deletedCalendarIDs = append(deletedCalendarIDs, deletedCalendarID...)
	case nil:
		return fmt.Errorf("(*Calendar).AfterDelete: calendar id is nil")
	default:
		return fmt.Errorf("(*Calendar).AfterDelete: wrong deletedCalendarID type | type=%T", deletedCalendarID)
	}

	if _, err := query.DB().NewDelete().
		Model((*Event)(nil)).
		Where("calendar_id IN (?)", bun.In(deletedCalendarIDs)).
		Exec(context.WithValue(ctx, EventUIDsCtxKey, func() []string {
			eventModels := make([]Event, 0)
			if err := query.DB().NewSelect().
				Model(&eventModels).
				Column("uid").
				Where("calendar_id IN (?)", bun.In(deletedCalendarIDs)).
				Scan(ctx); err != nil {
				slog.Warn("(*Calendar).AfterDelete: can't get event uids to inject to context", "error", err)
				return []string{}
			}
			eventUIDs := make([]string, 0)
			for _, eventModel := range eventModels {
				eventUIDs = append(eventUIDs, eventModel.UID)
			}
			return eventUIDs
		}())); err != nil {
		return fmt.Errorf("(*Calendar).AfterDelete: can't delete events: %w", err)
	}

	return nil
}

func (c *Calendar) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("(*Calendar).Upsert: calendar id is blank")
	case c.UserID == "":
		return fmt.Errorf("(*Calendar).Upsert: user id is blank")
	case c.Name == "":
		return fmt.Errorf("(*Calendar).Upsert: calendar name is blank")
	}
	if c.URL != "" {
		if _, err := url.ParseRequestURI(c.URL); err != nil {
			return fmt.Errorf("(*Calendar).Upsert: url is invalid: %w", err)
		}
	}

	if _, err := db.NewInsert().
		Model(c).
		On("CONFLICT (id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("name = EXCLUDED.name").
		Set("color = EXCLUDED.color").
		Set("url = EXCLUDED.url").
		Set("sync_token = EXCLUDED.sync_token").
		Set("enabled = EXCLUDED.enabled").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Calendar).Upsert: can't upsert calendar: %w", err)
	}

	return nil
}
