package model

import (
	"context"
	"fmt"
	"net/url"

	"github.com/uptrace/bun"
)

type ConnectionStatusType string

const (
	// saved but never synced successfully
	CONNECTION_STATUS_PENDING = ConnectionStatusType("pending")
	// last sync pass completed
	CONNECTION_STATUS_CONNECTED = ConnectionStatusType("connected")
	// last sync pass failed to authenticate
	CONNECTION_STATUS_ERROR = ConnectionStatusType("error")
)

// ServerConnection holds one user's CalDAV account. One row per user.
type ServerConnection struct {
	bun.BaseModel `bun:"table:server_connections"`

	UserID              string               `bun:"user_id,pk"`          // required
	ServerURL           string               `bun:"server_url,notnull"`  // required
	Username            string               `bun:"username,notnull"`    // required
	Password            string               `bun:"password,notnull"`    // required
	SyncIntervalSeconds int64                `bun:"sync_interval_seconds,notnull"`
	AutoSync            bool                 `bun:"auto_sync"`
	Status              ConnectionStatusType `bun:"status,notnull,type:varchar"`
	LastSync            int64                `bun:"last_sync"`
}

func (c *ServerConnection) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("(*ServerConnection).Upsert: user id is blank")
	case c.ServerURL == "":
		return fmt.Errorf("(*ServerConnection).Upsert: server url is blank")
	case c.Username == "":
		return fmt.Errorf("(*ServerConnection).Upsert: username is blank")
	case c.Password == "":
		return fmt.Errorf("(*ServerConnection).Upsert: password is blank")
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("(*ServerConnection).Upsert: server url is invalid: %w", err)
	}
	if c.Status == "" {
		c.Status = CONNECTION_STATUS_PENDING
	}

	if _, err := db.NewInsert().
		Model(c).
		On("CONFLICT (user_id) DO UPDATE").
		Set("server_url = EXCLUDED.server_url").
		Set("username = EXCLUDED.username").
		Set("password = EXCLUDED.password").
		Set("sync_interval_seconds = EXCLUDED.sync_interval_seconds").
		Set("auto_sync = EXCLUDED.auto_sync").
		Set("status = EXCLUDED.status").
		Set("last_sync = EXCLUDED.last_sync").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*ServerConnection).Upsert: %w", err)
	}
	return nil
}
