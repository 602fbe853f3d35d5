// Package notify fans calendar change notifications out to whatever
// transports a deployment has configured. Delivery is fire and forget:
// the sync engine never waits on a notification and never fails because
// one could not be delivered.
package notify

type ChangeType string

const (
	CHANGE_EVENT_CREATED    = ChangeType("event_created")
	CHANGE_EVENT_UPDATED    = ChangeType("event_updated")
	CHANGE_EVENT_DELETED    = ChangeType("event_deleted")
	CHANGE_EVENT_REMINDER   = ChangeType("event_reminder")
	CHANGE_CALENDAR_UPDATED = ChangeType("calendar_updated")
	CHANGE_SYNC_COMPLETED   = ChangeType("sync_completed")
)

// Notifier pushes one change notice to one user. ref is the id of the event
// or calendar the change concerns, blank when it concerns the whole account.
type Notifier interface {
	Notify(userID string, ref string, change ChangeType)
}

// Multi fans one notice out to several transports.
type Multi []Notifier

func (m Multi) Notify(userID string, ref string, change ChangeType) {
	for _, n := range m {
		n.Notify(userID, ref, change)
	}
}
