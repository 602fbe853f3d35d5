package model

import (
	"github.com/uptrace/bun"
)

// Resource is bookable equipment or a room attached to an event, kept in its
// own table so attendee queries never have to re-classify.
type Resource struct {
	bun.BaseModel `bun:"table:resources"`

	EventUID   string `bun:"event_uid,notnull"` // required
	Name       string `bun:"name,notnull"`      // required
	AdminEmail string `bun:"admin_email"`
	Type       string `bun:"type"`

	Event *Event `bun:"rel:belongs-to,join:event_uid=uid"`
}
