package model_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"remcal/src-server/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestEvent(t *testing.T) {
	// init db
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}

	// create models
	calendarModel := model.Calendar{
		ID:      uuid.NewString(),
		UserID:  "user-1",
		Name:    "calendar name test",
		Enabled: true,
	}
	startDate := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).Unix()
	eventModel := model.Event{
		UID:              "uid-1@example.com",
		CalendarID:       calendarModel.ID,
		Summary:          "test summary",
		StartDateUnixUTC: startDate,
		EndDateUnixUTC:   startDate + 3600,
		Timezone:         "UTC",
		SyncStatus:       model.SYNC_STATUS_LOCAL,
		CreatedAt:        startDate,
	}
	attendeeModel := model.Attendee{
		EventUID: eventModel.UID,
		Email:    "alice@example.com",
		Name:     "Alice",
	}
	resourceModel := model.Resource{
		EventUID: eventModel.UID,
		Name:     "Projector 1",
	}

	// insert models
	if err := calendarModel.Upsert(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}
	if err := eventModel.Upsert(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}
	if _, err := bundb.NewInsert().
		Model(&attendeeModel).
		Exec(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := bundb.NewInsert().
		Model(&resourceModel).
		Exec(context.Background()); err != nil {
		t.Fatal(err)
	}

	// case: event data exists with relations
	func() {
		eventModelTest := new(model.Event)
		if err := bundb.NewSelect().
			Model(eventModelTest).
			Relation("Attendees").
			Relation("Resources").
			Where("uid = ?", eventModel.UID).
			Scan(context.Background()); err != nil {
			t.Error(err)
		}
		if eventModelTest.Summary != eventModel.Summary {
			t.Error("summary not found", eventModelTest.Summary)
		}
		if eventModelTest.SyncStatus != model.SYNC_STATUS_LOCAL {
			t.Error("sync status not found", eventModelTest.SyncStatus)
		}
		if len(eventModelTest.Attendees) != 1 || eventModelTest.Attendees[0].Email != attendeeModel.Email {
			t.Error("attendee data not found")
		}
		if len(eventModelTest.Resources) != 1 || eventModelTest.Resources[0].Name != resourceModel.Name {
			t.Error("resource data not found")
		}
	}()

	// case: upsert validation
	func() {
		for _, invalidEventModel := range []model.Event{
			{CalendarID: calendarModel.ID, Summary: "s", StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate},
			{UID: "u", Summary: "s", StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate},
			{UID: "u", CalendarID: calendarModel.ID, StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate},
			{UID: "u", CalendarID: calendarModel.ID, Summary: "s", StartDateUnixUTC: startDate + 10, EndDateUnixUTC: startDate, CreatedAt: startDate},
			{UID: "u", CalendarID: "calendar-id-not-exist", Summary: "s", StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate},
			{UID: "u", CalendarID: calendarModel.ID, Summary: "s", StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate, SyncStatus: "bogus"},
			{UID: "u", CalendarID: calendarModel.ID, Summary: "s", StartDateUnixUTC: startDate, EndDateUnixUTC: startDate + 1, CreatedAt: startDate, URL: "not a url"},
		} {
			if err := invalidEventModel.Upsert(context.Background(), bundb); err == nil {
				t.Error("should not be able to upsert", invalidEventModel)
			}
		}
	}()

	// case: upserting the same uid again keeps one row and updates it
	func() {
		eventModel.Summary = "changed summary"
		eventModel.Sequence = 3
		if err := eventModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		count, err := bundb.NewSelect().
			Model((*model.Event)(nil)).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if count != 1 {
			t.Error("event row count should be 1", count)
		}
		eventModelTest := new(model.Event)
		if err := bundb.NewSelect().
			Model(eventModelTest).
			Where("uid = ?", eventModel.UID).
			Scan(context.Background()); err != nil {
			t.Error(err)
		}
		if eventModelTest.Summary != "changed summary" || eventModelTest.Sequence != 3 {
			t.Error("conflict update not applied", eventModelTest.Summary, eventModelTest.Sequence)
		}
	}()

	// case: occurrences materialized from the recurrence rule
	func() {
		eventModel.RecurrenceRule = "FREQ=WEEKLY;COUNT=4"
		if err := eventModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		count, err := bundb.NewSelect().
			Model((*model.Occurrence)(nil)).
			Where("event_uid = ?", eventModel.UID).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if count != 4 {
			t.Error("occurrence count should be 4", count)
		}
	}()

	// case: shrinking the rule leaves no stale occurrences behind
	func() {
		eventModel.RecurrenceRule = "FREQ=WEEKLY;COUNT=2"
		if err := eventModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		count, err := bundb.NewSelect().
			Model((*model.Occurrence)(nil)).
			Where("event_uid = ?", eventModel.UID).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if count != 2 {
			t.Error("occurrence count should be 2", count)
		}
	}()

	// case: dropping the rule clears the occurrences
	func() {
		eventModel.RecurrenceRule = ""
		if err := eventModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		count, err := bundb.NewSelect().
			Model((*model.Occurrence)(nil)).
			Where("event_uid = ?", eventModel.UID).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if count != 0 {
			t.Error("occurrence count should be 0", count)
		}
	}()

	// case: delete event and attendee/resource/occurrence data gone
	func() {
		eventModel.RecurrenceRule = "FREQ=DAILY;COUNT=3"
		if err := eventModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		if _, err := bundb.NewDelete().
			Model((*model.Event)(nil)).
			Where("uid = ?", eventModel.UID).
			Exec(context.WithValue(context.Background(), model.EventUIDsCtxKey, eventModel.UID)); err != nil {
			t.Error(err)
		}
		for _, childModel := range []interface{}{
			(*model.Attendee)(nil),
			(*model.Resource)(nil),
			(*model.Occurrence)(nil),
		} {
			count, err := bundb.NewSelect().
				Model(childModel).
				Where("event_uid = ?", eventModel.UID).
				Count(context.Background())
			if err != nil {
				t.Error(err)
			}
			if count != 0 {
				t.Errorf("%T data should not exist | count=%d", childModel, count)
			}
		}
	}()
}
