package route

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"remcal/src-server/model"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"
)

func Sync(muxer *http.ServeMux, as *utils.AppState, db *store.Store, registry *sync.Registry) {
	type SyncNowReqBody struct {
		ForceRefresh         bool   `json:"forceRefresh"`
		CalendarID           string `json:"calendarId"`
		PreserveLocalEvents  bool   `json:"preserveLocalEvents"`
		PreserveLocalDeletes bool   `json:"preserveLocalDeletes"`
	}

	// trigger a pass right away; an empty body runs with default options
	muxer.HandleFunc("POST /sync/now", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			var reqBody SyncNowReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil && !errors.Is(err, io.EOF) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			connectionModel, err := db.GetServerConnection(r.Context(), sessionModel.UserID)
			switch {
			case err != nil:
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get server connection from DB"))
				slog.Error("can't get server connection from DB", "error", err)
				return
			case connectionModel == nil:
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("No server connection configured"))
				return
			}

			// the pass outlives the request, so it must not run on r.Context()
			go registry.SyncNow(context.Background(), sessionModel.UserID, sync.Options{
				ForceRefresh:         reqBody.ForceRefresh,
				CalendarID:           reqBody.CalendarID,
				PreserveLocalEvents:  reqBody.PreserveLocalEvents,
				PreserveLocalDeletes: reqBody.PreserveLocalDeletes,
			})

			w.WriteHeader(http.StatusAccepted)
		}))

	type SyncStatusRespBody struct {
		Configured      bool  `json:"configured"`
		Syncing         bool  `json:"syncing"`
		LastSync        int64 `json:"lastSync"`
		IntervalSeconds int64 `json:"intervalSeconds"`
		InProgress      bool  `json:"inProgress"`
		AutoSync        bool  `json:"autoSync"`
	}

	muxer.HandleFunc("GET /sync/status", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			status, err := registry.Status(r.Context(), sessionModel.UserID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get sync status"))
				slog.Error("can't get sync status", "error", err)
				return
			}

			respBodyJson, err := json.Marshal(SyncStatusRespBody{
				Configured:      status.Configured,
				Syncing:         status.Syncing,
				LastSync:        status.LastSync,
				IntervalSeconds: int64(status.Interval / time.Second),
				InProgress:      status.InProgress,
				AutoSync:        status.AutoSync,
			})
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))

	// turn the periodic timer on without touching the saved settings
	muxer.HandleFunc("POST /sync/start", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			if !registry.StartSync(r.Context(), sessionModel.UserID) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("No server connection configured"))
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

	muxer.HandleFunc("POST /sync/stop", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			registry.StopSync(sessionModel.UserID)
			w.WriteHeader(http.StatusOK)
		}))
}
