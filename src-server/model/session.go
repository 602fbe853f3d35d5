package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Session is one logged-in UI client. The sync registry counts a user's
// sessions to decide when their background job may be pruned.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	Secret    string `bun:"secret,pk"`          // required
	UserID    string `bun:"user_id,notnull"`    // required
	CreatedAt int64  `bun:"created_at,notnull"` // required
	ExpiresAt int64  `bun:"expires_at,notnull"` // required
}

func (s *Session) Expired() bool {
	return s.ExpiresAt < time.Now().Unix()
}

func (s *Session) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case s.Secret == "":
		return fmt.Errorf("(*Session).Insert: secret is blank")
	case s.UserID == "":
		return fmt.Errorf("(*Session).Insert: user id is blank")
	case s.ExpiresAt == 0:
		return fmt.Errorf("(*Session).Insert: expires at is blank")
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}

	if _, err := db.NewInsert().
		Model(s).
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Session).Insert: %w", err)
	}
	return nil
}
