package model

import (
	"github.com/uptrace/bun"
)

type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	EventUID       string `bun:"event_uid,notnull"` // required
	Email          string `bun:"email,notnull"`     // required
	Name           string `bun:"name"`
	Role           string `bun:"role"`
	Status         string `bun:"status"`
	ScheduleStatus string `bun:"schedule_status"`

	Event *Event `bun:"rel:belongs-to,join:event_uid=uid"`
}
