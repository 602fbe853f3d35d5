// Package scheduler holds the background loops that run for the whole
// app rather than for one user.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"remcal/src-server/model"
	"remcal/src-server/notify"
	"remcal/src-server/utils"

	"github.com/uptrace/bun"
)

// EventNotify pushes a reminder for events starting within the next 15
// minutes. Runs until shutdown; main starts it on its own goroutine.
func EventNotify(as *utils.AppState, notifier notify.Notifier) {
	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	for {
		select {
		case <-*gracefulShutdownCh:
			return
		case <-time.After(time.Second * 30):
		}

		// get all events starting in 15 minutes from now
		eventModels := make([]model.Event, 0)
		if err := as.BunDB.
			NewSelect().
			Model(&eventModels).
			Relation("Calendar").
			Where("start_date > ?", time.Now().UTC().Unix()).
			Where("start_date < ?", time.Now().UTC().Add(15*time.Minute).Unix()).
			Where("notification_sent = ?", false).
			Scan(context.Background()); err != nil {
			slog.Error("EventNotify: can't get events", "error", err)
			continue
		}
		if len(eventModels) == 0 {
			continue
		}

		notifiedUIDs := make([]string, 0, len(eventModels))
		for i := range eventModels {
			if eventModels[i].Calendar == nil {
				continue
			}
			notifier.Notify(eventModels[i].Calendar.UserID, eventModels[i].UID, notify.CHANGE_EVENT_REMINDER)
			notifiedUIDs = append(notifiedUIDs, eventModels[i].UID)
		}
		if len(notifiedUIDs) == 0 {
			continue
		}

		if _, err := as.BunDB.
			NewUpdate().
			Model((*model.Event)(nil)).
			Set("notification_sent = ?", true).
			Where("uid IN (?)", bun.In(notifiedUIDs)).
			Exec(context.Background()); err != nil {
			slog.Error("EventNotify: can't update notification_sent field", "error", err)
		}
	}
}
