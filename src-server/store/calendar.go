package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"remcal/src-server/model"

	"github.com/google/uuid"
)

func (s *Store) GetCalendars(ctx context.Context, userID string) ([]model.Calendar, error) {
	if userID == "" {
		return nil, fmt.Errorf("(*Store).GetCalendars: user id is blank")
	}
	calendarModels := make([]model.Calendar, 0)
	if err := s.db.NewSelect().
		Model(&calendarModels).
		Where("user_id = ?", userID).
		Order("name ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*Store).GetCalendars: %w", err)
	}
	return calendarModels, nil
}

// GetCalendar returns nil when no calendar with that id exists.
func (s *Store) GetCalendar(ctx context.Context, calendarID string) (*model.Calendar, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("(*Store).GetCalendar: calendar id is blank")
	}
	calendarModel := new(model.Calendar)
	if err := s.db.NewSelect().
		Model(calendarModel).
		Where("id = ?", calendarID).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("(*Store).GetCalendar: %w", err)
	}
	return calendarModel, nil
}

// CreateCalendar fills in a fresh id when the caller left it blank.
func (s *Store) CreateCalendar(ctx context.Context, calendarModel *model.Calendar) error {
	if calendarModel.ID == "" {
		calendarModel.ID = uuid.NewString()
	}
	if err := calendarModel.Upsert(ctx, s.db); err != nil {
		return fmt.Errorf("(*Store).CreateCalendar: %w", err)
	}
	return nil
}

func (s *Store) UpdateCalendar(ctx context.Context, calendarModel *model.Calendar) error {
	exists, err := s.db.NewSelect().
		Model((*model.Calendar)(nil)).
		Where("id = ?", calendarModel.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Store).UpdateCalendar: %w", err)
	}
	if !exists {
		return fmt.Errorf("(*Store).UpdateCalendar: calendar id not found")
	}
	if err := calendarModel.Upsert(ctx, s.db); err != nil {
		return fmt.Errorf("(*Store).UpdateCalendar: %w", err)
	}
	return nil
}
