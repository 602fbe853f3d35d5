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

func TestCalendar(t *testing.T) {
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
		Color:   "#FF6600",
		URL:     "https://dav.example.com/calendars/alice/work/",
		Enabled: true,
	}
	startDate := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).Unix()
	eventModel := model.Event{
		UID:              "uid-1@example.com",
		CalendarID:       calendarModel.ID,
		Summary:          "test summary",
		StartDateUnixUTC: startDate,
		EndDateUnixUTC:   startDate + 3600,
		RecurrenceRule:   "FREQ=DAILY;COUNT=3",
		SyncStatus:       model.SYNC_STATUS_SYNCED,
		CreatedAt:        startDate,
	}
	attendeeModel := model.Attendee{
		EventUID: eventModel.UID,
		Email:    "alice@example.com",
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

	// case: calendar data exists with relation
	func() {
		calendarModelTest := new(model.Calendar)
		if err := bundb.NewSelect().
			Model(calendarModelTest).
			Relation("Events").
			Where("id = ?", calendarModel.ID).
			Scan(context.Background()); err != nil {
			t.Error(err)
		}
		if calendarModelTest.Name != calendarModel.Name {
			t.Error("calendar name not found", calendarModelTest.Name)
		}
		if len(calendarModelTest.Events) != 1 || calendarModelTest.Events[0].UID != eventModel.UID {
			t.Error("event relation not found")
		}
		if !calendarModelTest.Remote() {
			t.Error("calendar with url should be remote")
		}
	}()

	// case: upsert validation
	func() {
		for _, invalidCalendarModel := range []model.Calendar{
			{UserID: "user-1", Name: "n"},
			{ID: "id", Name: "n"},
			{ID: "id", UserID: "user-1"},
			{ID: "id", UserID: "user-1", Name: "n", URL: "not a url"},
		} {
			if err := invalidCalendarModel.Upsert(context.Background(), bundb); err == nil {
				t.Error("should not be able to upsert", invalidCalendarModel)
			}
		}
	}()

	// case: upserting the same id again keeps one row and updates it
	func() {
		calendarModel.Name = "renamed"
		calendarModel.SyncToken = "ct-42"
		if err := calendarModel.Upsert(context.Background(), bundb); err != nil {
			t.Error(err)
		}
		count, err := bundb.NewSelect().
			Model((*model.Calendar)(nil)).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if count != 1 {
			t.Error("calendar row count should be 1", count)
		}
		calendarModelTest := new(model.Calendar)
		if err := bundb.NewSelect().
			Model(calendarModelTest).
			Where("id = ?", calendarModel.ID).
			Scan(context.Background()); err != nil {
			t.Error(err)
		}
		if calendarModelTest.Name != "renamed" || calendarModelTest.SyncToken != "ct-42" {
			t.Error("conflict update not applied", calendarModelTest.Name, calendarModelTest.SyncToken)
		}
	}()

	// case: delete calendar and events with their children gone
	func() {
		if _, err := bundb.NewDelete().
			Model((*model.Calendar)(nil)).
			Where("id = ?", calendarModel.ID).
			Exec(context.WithValue(context.Background(), model.DeletedCalendarIDsCtxKey, calendarModel.ID)); err != nil {
			t.Error(err)
		}
		eventCount, err := bundb.NewSelect().
			Model((*model.Event)(nil)).
			Where("calendar_id = ?", calendarModel.ID).
			Count(context.Background())
		if err != nil {
			t.Error(err)
		}
		if eventCount != 0 {
			t.Error("event data should not exist", eventCount)
		}
		for _, childModel := range []interface{}{
			(*model.Attendee)(nil),
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
