package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           string `bun:"id,pk,notnull"`           // required
	Username     string `bun:"username,notnull,unique"` // required
	PasswordHash string `bun:"password_hash,notnull"`
	CreatedAt    int64  `bun:"created_at,notnull"`
}

func (u *User) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case u.ID == "":
		return fmt.Errorf("(*User).Upsert: user id is blank")
	case u.Username == "":
		return fmt.Errorf("(*User).Upsert: username is blank")
	}
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().Unix()
	}

	if _, err := db.NewInsert().
		Model(u).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("password_hash = EXCLUDED.password_hash").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*User).Upsert: %w", err)
	}
	return nil
}
