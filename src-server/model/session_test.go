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

func TestSession(t *testing.T) {
	// init db
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}

	// create model
	sessionModel := model.Session{
		Secret:    uuid.NewString(),
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	// insert model
	if err := sessionModel.Insert(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}

	// case: created at filled in on insert
	func() {
		sessionModelTest := new(model.Session)
		if err := bundb.NewSelect().
			Model(sessionModelTest).
			Where("secret = ?", sessionModel.Secret).
			Scan(context.Background()); err != nil {
			t.Error(err)
		}
		if sessionModelTest.CreatedAt == 0 {
			t.Error("created at should be filled in")
		}
		if sessionModelTest.Expired() {
			t.Error("session should not be expired yet")
		}
	}()

	// case: insert validation
	func() {
		for _, invalidSessionModel := range []model.Session{
			{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
			{Secret: uuid.NewString(), ExpiresAt: time.Now().Add(time.Hour).Unix()},
			{Secret: uuid.NewString(), UserID: "user-1"},
		} {
			if err := invalidSessionModel.Insert(context.Background(), bundb); err == nil {
				t.Error("should not be able to insert", invalidSessionModel)
			}
		}
	}()

	// case: expired session
	func() {
		expiredSessionModel := model.Session{
			Secret:    uuid.NewString(),
			UserID:    "user-1",
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		}
		if !expiredSessionModel.Expired() {
			t.Error("session should be expired")
		}
	}()
}
