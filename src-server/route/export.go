package route

import (
	"io"
	"log/slog"
	"net/http"

	"remcal/src-server/ical"
	"remcal/src-server/store"
	"remcal/src-server/sync"
)

// Export serves a calendar as a plain ICS feed. Feed URLs are fetched by
// external calendar apps, so there is no session cookie involved; the
// calendar id is the credential.
func Export(muxer *http.ServeMux, db *store.Store) {
	muxer.HandleFunc("GET /ical/{calendar_id}", func(w http.ResponseWriter, r *http.Request) {
		calendarID := r.PathValue("calendar_id")
		if calendarID == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Please provide a calendar ID"))
			return
		}

		calendarModel, err := db.GetCalendar(r.Context(), calendarID)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get calendar"))
			slog.Error("can't get calendar", "error", err)
			return
		case calendarModel == nil:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Calendar not found"))
			return
		}

		eventModels, err := db.GetEvents(r.Context(), calendarID)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get events"))
			slog.Error("can't get events", "error", err)
			return
		}

		records := make([]*ical.EventRecord, 0, len(eventModels))
		for i := range eventModels {
			records = append(records, sync.ModelToRecord(&eventModels[i]))
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, ical.GenerateICalFeed(calendarModel.Name, records)); err != nil {
			slog.Warn("can't write to response", "where", "route/export.go", "error", err)
		}
	})
}
