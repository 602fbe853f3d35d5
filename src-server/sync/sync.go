// Package `sync` reconciles local calendar state against a remote CalDAV
// server, one user at a time.
//
// The `Orchestrator` runs one pass: authenticate, reconcile the calendar
// list, pull remote objects into the local store, push local edits back,
// then persist the connection status. The `Registry` owns one job per user,
// drives passes off periodic timers and makes sure two passes for the same
// user never overlap.
//
// Only the authentication step is fatal to a pass; failures below it are
// logged and isolated to the item they touched. A record whose local edit
// is still waiting to be pushed (sync status `pending` or `error`) never
// has its content overwritten by a pull, only its etag is refreshed so the
// retry carries a current precondition.
package sync

import (
	"context"
	"time"

	"remcal/src-server/caldav"
	"remcal/src-server/model"
)

// Store is the persistence surface a pass needs. *store.Store implements it.
type Store interface {
	GetCalendars(ctx context.Context, userID string) ([]model.Calendar, error)
	GetCalendar(ctx context.Context, calendarID string) (*model.Calendar, error)
	CreateCalendar(ctx context.Context, calendarModel *model.Calendar) error
	UpdateCalendar(ctx context.Context, calendarModel *model.Calendar) error

	GetEvents(ctx context.Context, calendarID string) ([]model.Event, error)
	GetEventsBySyncStatus(ctx context.Context, calendarID string, statuses ...model.SyncStatusType) ([]model.Event, error)
	GetEventByUID(ctx context.Context, uid string) (*model.Event, error)
	CreateEvent(ctx context.Context, eventModel *model.Event) error
	UpdateEvent(ctx context.Context, eventModel *model.Event) error
	UpdateEventETag(ctx context.Context, uid string, etag string) error
	DeleteEvent(ctx context.Context, uid string) error

	GetServerConnection(ctx context.Context, userID string) (*model.ServerConnection, error)
	UpdateServerConnection(ctx context.Context, connectionModel *model.ServerConnection) error
}

// Client is the remote surface a pass drives. caldav.Client implements it.
type Client interface {
	Login(ctx context.Context) error
	FetchCalendars(ctx context.Context) ([]caldav.RemoteCalendar, error)
	FetchCalendarObjects(ctx context.Context, calendarURL string) ([]caldav.RemoteObject, error)
	PutCalendarObject(ctx context.Context, objectURL string, etag string, data []byte) (string, error)
	DeleteCalendarObject(ctx context.Context, objectURL string, etag string) error
}

// ClientFactory builds a Client for one connection's credentials. A fresh
// client per pass keeps discovery state from leaking across credential
// changes.
type ClientFactory func(serverURL string, username string, password string) (Client, error)

// Options steer one pass.
type Options struct {
	// run even while another pass is in flight: the request is queued and
	// runs right after the current pass finishes
	ForceRefresh bool
	// limit the pass to one local calendar id; blank means all
	CalendarID string
	// keep local records whose remote counterpart disappeared
	PreserveLocalEvents bool
	// treat remote objects with no local match as locally deleted: delete
	// them upstream instead of re-creating them here
	PreserveLocalDeletes bool
}

// Status is a read-only snapshot of one user's sync state.
type Status struct {
	Configured bool
	Syncing    bool
	LastSync   int64
	Interval   time.Duration
	InProgress bool
	AutoSync   bool
}
