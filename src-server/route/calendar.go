package route

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"remcal/src-server/model"
	"remcal/src-server/store"
	"remcal/src-server/utils"
)

func Calendar(muxer *http.ServeMux, as *utils.AppState, db *store.Store) {
	type OneCalendarRespBody struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Color   string `json:"color"`
		Url     string `json:"url"`
		Enabled bool   `json:"enabled"`
	}

	muxer.HandleFunc("GET /calendar/list", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			calendarModels, err := db.GetCalendars(r.Context(), sessionModel.UserID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get calendars"))
				slog.Error("can't get calendars", "error", err)
				return
			}

			respBody := make([]OneCalendarRespBody, 0)
			for _, calendarModel := range calendarModels {
				respBody = append(respBody, OneCalendarRespBody{
					ID:      calendarModel.ID,
					Name:    calendarModel.Name,
					Color:   calendarModel.Color,
					Url:     calendarModel.URL,
					Enabled: calendarModel.Enabled,
				})
			}
			respBodyJson, err := json.Marshal(respBody)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))

	type GetEventsReqBody struct {
		StartDateUnixUTC int64 `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64 `json:"endDateUnixUTC"`
	}

	type OneAttendeeRespBody struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Status string `json:"status"`
	}

	type OneEventRespBody struct {
		UID              string                `json:"uid"`
		CalendarID       string                `json:"calendarId"`
		Title            string                `json:"title"`
		Description      string                `json:"description"`
		Location         string                `json:"location"`
		Url              string                `json:"url"`
		Organizer        string                `json:"organizer"`
		StartDateUnixUTC int64                 `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64                 `json:"endDateUnixUTC"`
		IsWholeDay       bool                  `json:"isWholeDay"`
		RecurrenceRule   string                `json:"recurrenceRule,omitempty"`
		SyncStatus       string                `json:"syncStatus"`
		Attendees        []OneAttendeeRespBody `json:"attendees,omitempty"`
		// recurring events surface each instant inside the window
		OccurrencesInRange []int64 `json:"occurrencesInRange,omitempty"`
	}

	// get all events in date range
	muxer.HandleFunc("POST /calendar/get-events", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// #region - parse date
			var reqBody GetEventsReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.StartDateUnixUTC == 0 || reqBody.EndDateUnixUTC == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a start date and end date"))
				return
			}
			// #endregion

			// #region - get all events & prepare response body
			eventModels, err := db.GetEventsInRange(r.Context(),
				sessionModel.UserID,
				reqBody.StartDateUnixUTC,
				reqBody.EndDateUnixUTC)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get events"))
				slog.Error("can't get events", "error", err)
				return
			}

			respBody := make([]OneEventRespBody, 0)
			for _, event := range eventModels {
				attendees := make([]OneAttendeeRespBody, 0, len(event.Attendees))
				for _, attendeeModel := range event.Attendees {
					attendees = append(attendees, OneAttendeeRespBody{
						Name:   attendeeModel.Name,
						Email:  attendeeModel.Email,
						Status: attendeeModel.Status,
					})
				}

				occurrencesInRange := func() []int64 {
					if event.RecurrenceRule == "" {
						return nil
					}
					occurrences, err := model.ExpandRecurrence(event.StartDateUnixUTC, event.RecurrenceRule)
					if err != nil {
						slog.Warn("can't expand recurrence rule",
							"uid", event.UID,
							"error", err)
						return nil
					}
					inRange := make([]int64, 0)
					for _, occurrence := range occurrences {
						if occurrence >= reqBody.StartDateUnixUTC && occurrence <= reqBody.EndDateUnixUTC {
							inRange = append(inRange, occurrence)
						}
					}
					return inRange
				}()

				respBody = append(respBody, OneEventRespBody{
					UID:                event.UID,
					CalendarID:         event.CalendarID,
					Title:              event.Summary,
					Description:        event.Description,
					Location:           event.Location,
					Url:                event.URL,
					Organizer:          event.Organizer,
					StartDateUnixUTC:   event.StartDateUnixUTC,
					EndDateUnixUTC:     event.EndDateUnixUTC,
					IsWholeDay:         event.AllDay,
					RecurrenceRule:     event.RecurrenceRule,
					SyncStatus:         string(event.SyncStatus),
					Attendees:          attendees,
					OccurrencesInRange: occurrencesInRange,
				})
			}
			respBodyJson, err := json.Marshal(respBody)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			// #endregion

			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))
}
