package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"remcal/src-server/model"

	"github.com/uptrace/bun"
)

func (s *Store) GetEvents(ctx context.Context, calendarID string) ([]model.Event, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("(*Store).GetEvents: calendar id is blank")
	}
	eventModels := make([]model.Event, 0)
	if err := s.db.NewSelect().
		Model(&eventModels).
		Relation("Attendees").
		Relation("Resources").
		Where("calendar_id = ?", calendarID).
		Order("start_date ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).GetEvents: %w", err)
	}
	return eventModels, nil
}

// GetEventsInRange returns the user's events overlapping the window across
// all enabled calendars. Recurring events match through their materialized
// occurrences, so a weekly event started last year still shows up this week.
func (s *Store) GetEventsInRange(ctx context.Context, userID string, startUnix int64, endUnix int64) ([]model.Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("(*Store).GetEventsInRange: user id is blank")
	}
	calendarIDs := s.db.NewSelect().
		Model((*model.Calendar)(nil)).
		Column("id").
		Where("user_id = ?", userID).
		Where("enabled = ?", true)
	occurrenceUIDs := s.db.NewSelect().
		Model((*model.Occurrence)(nil)).
		Column("event_uid").
		Where("date >= ?", startUnix).
		Where("date <= ?", endUnix)

	eventModels := make([]model.Event, 0)
	if err := s.db.NewSelect().
		Model(&eventModels).
		Relation("Attendees").
		Relation("Resources").
		Where("calendar_id IN (?)", calendarIDs).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("(start_date <= ? AND end_date >= ?)", endUnix, startUnix).
				WhereOr("uid IN (?)", occurrenceUIDs)
		}).
		Order("start_date ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).GetEventsInRange: %w", err)
	}
	return eventModels, nil
}

func (s *Store) GetEventsBySyncStatus(ctx context.Context, calendarID string, statuses ...model.SyncStatusType) ([]model.Event, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("(*Store).GetEventsBySyncStatus: calendar id is blank")
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("(*Store).GetEventsBySyncStatus: no statuses given")
	}
	eventModels := make([]model.Event, 0)
	if err := s.db.NewSelect().
		Model(&eventModels).
		Relation("Attendees").
		Relation("Resources").
		Where("calendar_id = ?", calendarID).
		Where("sync_status IN (?)", bun.In(statuses)).
		Order("start_date ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).GetEventsBySyncStatus: %w", err)
	}
	return eventModels, nil
}

// GetEventByUID returns nil when no event with that uid exists.
func (s *Store) GetEventByUID(ctx context.Context, uid string) (*model.Event, error) {
	if uid == "" {
		return nil, fmt.Errorf("(*Store).GetEventByUID: uid is blank")
	}
	eventModel := new(model.Event)
	if err := s.db.NewSelect().
		Model(eventModel).
		Relation("Attendees").
		Relation("Resources").
		Where("uid = ?", uid).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("(*Store).GetEventByUID: %w", err)
	}
	return eventModel, nil
}

func (s *Store) CreateEvent(ctx context.Context, eventModel *model.Event) error {
	if err := s.writeEvent(ctx, eventModel); err != nil {
		return fmt.Errorf("(*Store).CreateEvent: %w", err)
	}
	return nil
}

// UpdateEvent writes back an existing record. The row is addressed by its
// uid, so an update can never move a record to a different uid.
func (s *Store) UpdateEvent(ctx context.Context, eventModel *model.Event) error {
	exists, err := s.db.NewSelect().
		Model((*model.Event)(nil)).
		Where("uid = ?", eventModel.UID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Store).UpdateEvent: %w", err)
	}
	if !exists {
		return fmt.Errorf("(*Store).UpdateEvent: event uid not found")
	}
	if err := s.writeEvent(ctx, eventModel); err != nil {
		return fmt.Errorf("(*Store).UpdateEvent: %w", err)
	}
	return nil
}

// UpdateEventETag refreshes the etag column and nothing else. The pull phase
// uses it on records whose local edits are still waiting to be pushed.
func (s *Store) UpdateEventETag(ctx context.Context, uid string, etag string) error {
	if uid == "" {
		return fmt.Errorf("(*Store).UpdateEventETag: uid is blank")
	}
	if _, err := s.db.NewUpdate().
		Model((*model.Event)(nil)).
		Set("etag = ?", etag).
		Where("uid = ?", uid).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Store).UpdateEventETag: %w", err)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("(*Store).DeleteEvent: uid is blank")
	}
	if _, err := s.db.NewDelete().
		Model((*model.Event)(nil)).
		Where("uid = ?", uid).
		Exec(context.WithValue(ctx, model.EventUIDsCtxKey, uid)); err != nil {
		return fmt.Errorf("(*Store).DeleteEvent: %w", err)
	}
	return nil
}

// writeEvent upserts the event row and replaces its attendee and resource
// rows in one transaction.
func (s *Store) writeEvent(ctx context.Context, eventModel *model.Event) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := eventModel.Upsert(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.NewDelete().
			Model((*model.Attendee)(nil)).
			Where("event_uid = ?", eventModel.UID).
			Exec(ctx); err != nil {
			return fmt.Errorf("can't clear attendees: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*model.Resource)(nil)).
			Where("event_uid = ?", eventModel.UID).
			Exec(ctx); err != nil {
			return fmt.Errorf("can't clear resources: %w", err)
		}

		if len(eventModel.Attendees) > 0 {
			for _, attendeeModel := range eventModel.Attendees {
				attendeeModel.EventUID = eventModel.UID
			}
			if _, err := tx.NewInsert().
				Model(&eventModel.Attendees).
				Exec(ctx); err != nil {
				return fmt.Errorf("can't insert attendees: %w", err)
			}
		}
		if len(eventModel.Resources) > 0 {
			for _, resourceModel := range eventModel.Resources {
				resourceModel.EventUID = eventModel.UID
			}
			if _, err := tx.NewInsert().
				Model(&eventModel.Resources).
				Exec(ctx); err != nil {
				return fmt.Errorf("can't insert resources: %w", err)
			}
		}
		return nil
	})
}
