package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remcal/src-server/ical"
	"remcal/src-server/model"
)

// pushStatusOrder is the order local edits go out in. Records with a known
// remote copy go first so their etags are spent before anything else can
// move them.
var pushStatusOrder = []model.SyncStatusType{
	model.SYNC_STATUS_PENDING,
	model.SYNC_STATUS_LOCAL,
	model.SYNC_STATUS_ERROR,
}

// pushCalendar sends every unpushed local edit in one calendar to the
// server. A failed event is marked errored and skipped; it never stops the
// rest of the queue. Returns true when at least one push updated an
// existing remote object, which is the cue for a follow-up pull.
func (o *Orchestrator) pushCalendar(ctx context.Context, client Client, userID string, calendarModel *model.Calendar) (bool, error) {
	queue, err := o.store.GetEventsBySyncStatus(ctx, calendarModel.ID, pushStatusOrder...)
	if err != nil {
		return false, fmt.Errorf("can't get push queue: %w", err)
	}
	if len(queue) == 0 {
		return false, nil
	}

	byStatus := make(map[model.SyncStatusType][]*model.Event, len(pushStatusOrder))
	for i := range queue {
		eventModel := &queue[i]
		byStatus[eventModel.SyncStatus] = append(byStatus[eventModel.SyncStatus], eventModel)
	}

	var pushed int
	var pushedUpdate bool
	for _, status := range pushStatusOrder {
		for _, eventModel := range byStatus[status] {
			if ctx.Err() != nil {
				return pushedUpdate, ctx.Err()
			}
			updatedExisting, err := o.pushEvent(ctx, client, calendarModel, eventModel)
			if err != nil {
				slog.Warn("(*Orchestrator).pushCalendar: push failed",
					"userID", userID,
					"uid", eventModel.UID,
					"error", err)
				eventModel.SyncStatus = model.SYNC_STATUS_ERROR
				eventModel.LastSyncAttempt = time.Now().Unix()
				if err := o.store.UpdateEvent(ctx, eventModel); err != nil {
					slog.Warn("(*Orchestrator).pushCalendar: can't mark event errored",
						"userID", userID,
						"uid", eventModel.UID,
						"error", err)
				}
				continue
			}
			pushed++
			if updatedExisting {
				pushedUpdate = true
			}
		}
	}

	if o.metrics != nil {
		o.metrics.SyncEventsPushed <- float64(pushed)
	}
	return pushedUpdate, nil
}

// pushEvent sends one local record upstream and flips it to synced.
func (o *Orchestrator) pushEvent(ctx context.Context, client Client, calendarModel *model.Calendar, eventModel *model.Event) (bool, error) {
	rec := ModelToRecord(eventModel)

	// an update carries the etag it last saw as its precondition; anything
	// without both a url and an etag is a create
	isUpdate := eventModel.URL != "" && eventModel.ETag != ""
	if isUpdate {
		// the new revision must outrank both the server's embedded sequence
		// and whatever local edits already claimed
		sequence := ical.EmbeddedSequence(eventModel.RawData)
		if eventModel.Sequence > sequence {
			sequence = eventModel.Sequence
		}
		rec.Sequence = sequence + 1
	}

	payload, err := ical.GenerateICalEvent(rec)
	if err != nil {
		return false, fmt.Errorf("can't serialize event: %w", err)
	}

	objectURL := eventModel.URL
	if objectURL == "" {
		objectURL = strings.TrimRight(calendarModel.URL, "/") + "/" + eventModel.UID + ".ics"
	}

	newETag, err := client.PutCalendarObject(ctx, objectURL, eventModel.ETag, []byte(payload))
	if err != nil {
		return false, fmt.Errorf("can't put object: %w", err)
	}

	now := time.Now().Unix()
	eventModel.URL = objectURL
	eventModel.ETag = newETag
	eventModel.RawData = payload
	eventModel.Sequence = rec.Sequence
	eventModel.SyncStatus = model.SYNC_STATUS_SYNCED
	eventModel.LastSyncAttempt = now
	eventModel.UpdatedAt = now
	if err := o.store.UpdateEvent(ctx, eventModel); err != nil {
		// the remote write landed; the stale local record heals on the next
		// pass through the etag refresh
		return false, fmt.Errorf("can't store pushed event: %w", err)
	}
	return isUpdate, nil
}
