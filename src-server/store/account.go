package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"remcal/src-server/model"
)

func (s *Store) CreateUser(ctx context.Context, userModel *model.User) error {
	if err := userModel.Upsert(ctx, s.db); err != nil {
		return fmt.Errorf("(*Store).CreateUser: %w", err)
	}
	return nil
}

// GetUserByUsername returns nil when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("(*Store).GetUserByUsername: username is blank")
	}
	userModel := new(model.User)
	if err := s.db.NewSelect().
		Model(userModel).
		Where("username = ?", username).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("(*Store).GetUserByUsername: %w", err)
	}
	return userModel, nil
}

func (s *Store) CreateSession(ctx context.Context, sessionModel *model.Session) error {
	if err := sessionModel.Insert(ctx, s.db); err != nil {
		return fmt.Errorf("(*Store).CreateSession: %w", err)
	}
	return nil
}

// GetSession returns nil when the secret matches no session.
func (s *Store) GetSession(ctx context.Context, secret string) (*model.Session, error) {
	if secret == "" {
		return nil, fmt.Errorf("(*Store).GetSession: secret is blank")
	}
	sessionModel := new(model.Session)
	if err := s.db.NewSelect().
		Model(sessionModel).
		Where("secret = ?", secret).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("(*Store).GetSession: %w", err)
	}
	return sessionModel, nil
}

func (s *Store) DeleteSession(ctx context.Context, secret string) error {
	if secret == "" {
		return fmt.Errorf("(*Store).DeleteSession: secret is blank")
	}
	if _, err := s.db.NewDelete().
		Model((*model.Session)(nil)).
		Where("secret = ?", secret).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Store).DeleteSession: %w", err)
	}
	return nil
}
