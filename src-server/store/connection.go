package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"remcal/src-server/model"
)

// GetServerConnection returns nil when the user has no CalDAV connection
// configured yet.
func (s *Store) GetServerConnection(ctx context.Context, userID string) (*model.ServerConnection, error) {
	if userID == "" {
		return nil, fmt.Errorf("(*Store).GetServerConnection: user id is blank")
	}
	connectionModel := new(model.ServerConnection)
	if err := s.db.NewSelect().
		Model(connectionModel).
		Where("user_id = ?", userID).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("(*Store).GetServerConnection: %w", err)
	}
	return connectionModel, nil
}

func (s *Store) UpdateServerConnection(ctx context.Context, connectionModel *model.ServerConnection) error {
	if err := connectionModel.Upsert(ctx, s.db); err != nil {
		return fmt.Errorf("(*Store).UpdateServerConnection: %w", err)
	}
	return nil
}
