package route

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"remcal/src-server/ical"
	"remcal/src-server/model"
	"remcal/src-server/notify"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"

	"github.com/google/uuid"
)

func Event(muxer *http.ServeMux, as *utils.AppState, db *store.Store, newClient sync.ClientFactory, mailer *notify.Mailer, notifier notify.Notifier) {
	type CreateEventReqBody struct {
		CalendarID       string   `json:"calendarId"`
		Title            string   `json:"title"`
		Description      string   `json:"description"`
		Location         string   `json:"location"`
		Organizer        string   `json:"organizer"`
		StartDateUnixUTC int64    `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64    `json:"endDateUnixUTC"`
		IsWholeDay       bool     `json:"isWholeDay"`
		RecurrenceRule   string   `json:"recurrenceRule"`
		Attendees        []string `json:"attendees"`
	}

	// create a new event, the success response is the event UID
	muxer.HandleFunc("POST /event/create", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// parse request body
			var reqBody CreateEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.StartDateUnixUTC == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a start date"))
				return
			}
			if reqBody.EndDateUnixUTC != 0 && reqBody.EndDateUnixUTC < reqBody.StartDateUnixUTC {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("End date must not be before start date"))
				return
			}

			calendarModel, ok := resolveCalendar(w, r, db, sessionModel.UserID, reqBody.CalendarID)
			if !ok {
				return
			}

			// create event
			newEvent := model.Event{
				UID:              uuid.NewString() + "@" + as.Config.GetHostname(),
				CalendarID:       calendarModel.ID,
				Summary:          reqBody.Title,
				Description:      reqBody.Description,
				Location:         reqBody.Location,
				Organizer:        reqBody.Organizer,
				StartDateUnixUTC: reqBody.StartDateUnixUTC,
				EndDateUnixUTC:   deriveEndDate(reqBody.StartDateUnixUTC, reqBody.EndDateUnixUTC, reqBody.IsWholeDay),
				AllDay:           reqBody.IsWholeDay,
				RecurrenceRule:   ical.SanitizeRRule(reqBody.RecurrenceRule),
				SyncStatus:       model.SYNC_STATUS_LOCAL,
				CreatedAt:        time.Now().Unix(),
				UpdatedAt:        time.Now().Unix(),
			}
			if newEvent.Summary == "" {
				newEvent.Summary = "Untitled Event"
			}
			for _, email := range reqBody.Attendees {
				if email == "" {
					continue
				}
				newEvent.Attendees = append(newEvent.Attendees, &model.Attendee{
					Email:  email,
					Role:   "REQ-PARTICIPANT",
					Status: "NEEDS-ACTION",
				})
			}
			if err := db.CreateEvent(r.Context(), &newEvent); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create event"))
				slog.Error("can't create event", "error", err)
				return
			}
			notifier.Notify(sessionModel.UserID, newEvent.UID, notify.CHANGE_EVENT_CREATED)

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(newEvent.UID))
		}))

	type ModifyEventReqBody struct {
		UID string `json:"uid"`
		CreateEventReqBody
	}

	// modify an existing event. The uid only addresses the record; it never
	// changes, and neither does the calendar the record lives in.
	muxer.HandleFunc("POST /event/modify", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// parse request body
			var reqBody ModifyEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.UID == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide an event UID"))
				return
			}

			eventModel, ok := getOwnedEvent(w, r, db, sessionModel.UserID, reqBody.UID)
			if !ok {
				return
			}

			eventModel.Summary = reqBody.Title
			if eventModel.Summary == "" {
				eventModel.Summary = "Untitled Event"
			}
			eventModel.Description = reqBody.Description
			eventModel.Location = reqBody.Location
			eventModel.Organizer = reqBody.Organizer
			eventModel.AllDay = reqBody.IsWholeDay
			eventModel.RecurrenceRule = ical.SanitizeRRule(reqBody.RecurrenceRule)
			if reqBody.StartDateUnixUTC != 0 {
				// a moved event gets its reminder again
				if reqBody.StartDateUnixUTC != eventModel.StartDateUnixUTC {
					eventModel.NotificationSent = false
				}
				eventModel.StartDateUnixUTC = reqBody.StartDateUnixUTC
			}
			if reqBody.EndDateUnixUTC != 0 {
				eventModel.EndDateUnixUTC = reqBody.EndDateUnixUTC
			}
			if eventModel.EndDateUnixUTC < eventModel.StartDateUnixUTC {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("End date must not be before start date"))
				return
			}
			// attendees are only touched when the request carries the field
			if reqBody.Attendees != nil {
				eventModel.Attendees = nil
				for _, email := range reqBody.Attendees {
					if email == "" {
						continue
					}
					eventModel.Attendees = append(eventModel.Attendees, &model.Attendee{
						Email:  email,
						Role:   "REQ-PARTICIPANT",
						Status: "NEEDS-ACTION",
					})
				}
			}
			eventModel.UpdatedAt = time.Now().Unix()

			// a local edit of a record the remote already knows must go back out
			switch eventModel.SyncStatus {
			case model.SYNC_STATUS_SYNCED, model.SYNC_STATUS_ERROR:
				eventModel.SyncStatus = model.SYNC_STATUS_PENDING
			}

			if err := db.UpdateEvent(r.Context(), eventModel); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't modify event"))
				slog.Error("can't modify event", "error", err)
				return
			}
			notifier.Notify(sessionModel.UserID, eventModel.UID, notify.CHANGE_EVENT_UPDATED)

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(eventModel.UID))
		}))

	type DeleteEventReqBody struct {
		UID string `json:"uid"`
	}

	// delete an event. Records the remote knows are cancelled upstream
	// first: attendees get a METHOD:CANCEL mail, then the object is deleted
	// off the CalDAV server, and only then locally.
	muxer.HandleFunc("POST /event/delete", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// parse request body
			var reqBody DeleteEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.UID == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide an event UID"))
				return
			}

			eventModel, ok := getOwnedEvent(w, r, db, sessionModel.UserID, reqBody.UID)
			if !ok {
				return
			}

			// #region - cancel the remote copy
			if eventModel.URL != "" {
				connectionModel, err := db.GetServerConnection(r.Context(), sessionModel.UserID)
				switch {
				case err != nil:
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Can't get server connection from DB"))
					slog.Error("can't get server connection from DB", "error", err)
					return
				case connectionModel == nil:
					slog.Warn("deleting a remote-backed event without a connection",
						"uid", eventModel.UID)
				default:
					// mail failures never block the delete
					recipients := attendeeEmails(eventModel)
					if mailer != nil && len(recipients) > 0 && eventModel.RawData != "" {
						cancelICS, err := ical.TransformICSForCancellation(
							eventModel.RawData, sync.ModelToRecord(eventModel))
						if err != nil {
							slog.Warn("can't build cancellation message",
								"uid", eventModel.UID,
								"error", err)
						} else if err := mailer.SendCancellation(
							recipients, eventModel.Summary, cancelICS); err != nil {
							slog.Warn("can't send cancellation mails",
								"uid", eventModel.UID,
								"error", err)
						}
					}

					client, err := newClient(
						connectionModel.ServerURL,
						connectionModel.Username,
						connectionModel.Password)
					if err != nil {
						w.WriteHeader(http.StatusBadGateway)
						w.Write([]byte("Can't reach the CalDAV server"))
						slog.Error("can't build caldav client", "error", err)
						return
					}
					// a failed remote delete keeps the local record, or the
					// next pull would just resurrect it
					if err := client.DeleteCalendarObject(r.Context(), eventModel.URL, eventModel.ETag); err != nil {
						w.WriteHeader(http.StatusBadGateway)
						w.Write([]byte("Can't delete the event on the CalDAV server"))
						slog.Error("can't delete the event on the CalDAV server",
							"uid", eventModel.UID,
							"error", err)
						return
					}
				}
			}
			// #endregion

			if err := db.DeleteEvent(r.Context(), eventModel.UID); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete event"))
				slog.Error("can't delete event", "error", err)
				return
			}
			notifier.Notify(sessionModel.UserID, eventModel.UID, notify.CHANGE_EVENT_DELETED)

			w.WriteHeader(http.StatusOK)
		}))

	type QuickAddReqBody struct {
		Text       string `json:"text"`
		CalendarID string `json:"calendarId"`
	}

	type QuickAddRespBody struct {
		UID              string `json:"uid"`
		Title            string `json:"title"`
		StartDateUnixUTC int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64  `json:"endDateUnixUTC"`
	}

	// create an event from natural language, e.g. "lunch with ana tomorrow
	// at noon"
	muxer.HandleFunc("POST /event/quick-add", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// parse request body
			var reqBody QuickAddReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if strings.TrimSpace(reqBody.Text) == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a text to parse"))
				return
			}

			result, err := as.When.Parse(reqBody.Text, time.Now().In(as.Config.GetLocation()))
			switch {
			case err != nil:
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't parse the text"))
				return
			case result == nil:
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't find a date or time in the text"))
				return
			}

			calendarModel, ok := resolveCalendar(w, r, db, sessionModel.UserID, reqBody.CalendarID)
			if !ok {
				return
			}

			// whatever isn't the date phrase becomes the title
			title := utils.CleanupString(strings.Replace(reqBody.Text, result.Text, "", 1))
			if title == "" {
				title = "Untitled Event"
			}

			newEvent := model.Event{
				UID:              uuid.NewString() + "@" + as.Config.GetHostname(),
				CalendarID:       calendarModel.ID,
				Summary:          title,
				StartDateUnixUTC: result.Time.Unix(),
				// quick-add events default to one hour
				EndDateUnixUTC: result.Time.Add(time.Hour).Unix(),
				SyncStatus:     model.SYNC_STATUS_LOCAL,
				CreatedAt:      time.Now().Unix(),
				UpdatedAt:      time.Now().Unix(),
			}
			if err := db.CreateEvent(r.Context(), &newEvent); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create event"))
				slog.Error("can't create event", "error", err)
				return
			}
			notifier.Notify(sessionModel.UserID, newEvent.UID, notify.CHANGE_EVENT_CREATED)

			respBodyJson, err := json.Marshal(QuickAddRespBody{
				UID:              newEvent.UID,
				Title:            newEvent.Summary,
				StartDateUnixUTC: newEvent.StartDateUnixUTC,
				EndDateUnixUTC:   newEvent.EndDateUnixUTC,
			})
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))
}

// deriveEndDate fills a missing end date from the start: one day for
// whole-day events, one hour otherwise.
func deriveEndDate(startUnix int64, endUnix int64, allDay bool) int64 {
	if endUnix != 0 {
		return endUnix
	}
	if allDay {
		return time.Unix(startUnix, 0).UTC().AddDate(0, 0, 1).Unix()
	}
	return time.Unix(startUnix, 0).UTC().Add(time.Hour).Unix()
}

// resolveCalendar maps a request's calendar id to one the user owns. A blank
// id falls back to the user's first calendar, creating a local one for
// accounts that have none yet. Writes the error response itself and reports
// false when the caller should bail.
func resolveCalendar(w http.ResponseWriter, r *http.Request, db *store.Store, userID string, calendarID string) (*model.Calendar, bool) {
	if calendarID != "" {
		calendarModel, err := db.GetCalendar(r.Context(), calendarID)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get calendar"))
			slog.Error("can't get calendar", "error", err)
			return nil, false
		case calendarModel == nil, calendarModel.UserID != userID:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Calendar not found"))
			return nil, false
		}
		return calendarModel, true
	}

	calendarModels, err := db.GetCalendars(r.Context(), userID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't get calendars"))
		slog.Error("can't get calendars", "error", err)
		return nil, false
	}
	if len(calendarModels) > 0 {
		return &calendarModels[0], true
	}

	newCalendar := model.Calendar{
		UserID:  userID,
		Name:    "Personal",
		Enabled: true,
	}
	if err := db.CreateCalendar(r.Context(), &newCalendar); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't create calendar"))
		slog.Error("can't create calendar", "error", err)
		return nil, false
	}
	return &newCalendar, true
}

// getOwnedEvent loads an event and checks it belongs to the user. Lookups
// that miss and lookups into someone else's calendar answer the same way.
func getOwnedEvent(w http.ResponseWriter, r *http.Request, db *store.Store, userID string, uid string) (*model.Event, bool) {
	eventModel, err := db.GetEventByUID(r.Context(), uid)
	switch {
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't get event"))
		slog.Error("can't get event", "error", err)
		return nil, false
	case eventModel == nil:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Event not found"))
		return nil, false
	}

	calendarModel, err := db.GetCalendar(r.Context(), eventModel.CalendarID)
	switch {
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't get calendar"))
		slog.Error("can't get calendar", "error", err)
		return nil, false
	case calendarModel == nil, calendarModel.UserID != userID:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Event not found"))
		return nil, false
	}
	return eventModel, true
}

func attendeeEmails(eventModel *model.Event) []string {
	emails := make([]string, 0, len(eventModel.Attendees))
	for _, attendeeModel := range eventModel.Attendees {
		if attendeeModel.Email != "" {
			emails = append(emails, attendeeModel.Email)
		}
	}
	return emails
}
