package route

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"remcal/src-server/model"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"
)

func Connection(muxer *http.ServeMux, as *utils.AppState, db *store.Store, registry *sync.Registry) {
	type ConnectionRespBody struct {
		ServerURL           string `json:"serverUrl"`
		Username            string `json:"username"`
		SyncIntervalSeconds int64  `json:"syncIntervalSeconds"`
		AutoSync            bool   `json:"autoSync"`
		Status              string `json:"status"`
		LastSync            int64  `json:"lastSync"`
	}

	// the stored password never leaves the server
	muxer.HandleFunc("GET /connection", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			w.Header().Set("Content-Type", "application/json")
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

			respBodyJson, err := json.Marshal(ConnectionRespBody{
				ServerURL:           connectionModel.ServerURL,
				Username:            connectionModel.Username,
				SyncIntervalSeconds: connectionModel.SyncIntervalSeconds,
				AutoSync:            connectionModel.AutoSync,
				Status:              string(connectionModel.Status),
				LastSync:            connectionModel.LastSync,
			})
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))

	type UpdateConnectionReqBody struct {
		ServerURL           string `json:"serverUrl"`
		Username            string `json:"username"`
		Password            string `json:"password"`
		SyncIntervalSeconds int64  `json:"syncIntervalSeconds"`
		AutoSync            bool   `json:"autoSync"`
	}

	muxer.HandleFunc("PUT /connection", AuthMiddleware(as, db,
		func(w http.ResponseWriter, r *http.Request) {
			sessionModel, ok := r.Context().Value(SessionCtxKey).(*model.Session)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get session from middleware"))
				return
			}

			// parse request body
			var reqBody UpdateConnectionReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.ServerURL == "" || reqBody.Username == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a server url and username"))
				return
			}
			if _, err := url.ParseRequestURI(reqBody.ServerURL); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid server url"))
				return
			}

			existingModel, err := db.GetServerConnection(r.Context(), sessionModel.UserID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get server connection from DB"))
				slog.Error("can't get server connection from DB", "error", err)
				return
			}

			// a blank password keeps the stored one
			password := reqBody.Password
			if password == "" {
				if existingModel == nil {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte("Please provide a password"))
					return
				}
				password = existingModel.Password
			}

			connectionModel := model.ServerConnection{
				UserID:              sessionModel.UserID,
				ServerURL:           reqBody.ServerURL,
				Username:            reqBody.Username,
				Password:            password,
				SyncIntervalSeconds: reqBody.SyncIntervalSeconds,
				AutoSync:            reqBody.AutoSync,
				Status:              model.CONNECTION_STATUS_PENDING,
			}
			if existingModel != nil {
				connectionModel.LastSync = existingModel.LastSync
			}
			if err := db.UpdateServerConnection(r.Context(), &connectionModel); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't save server connection to DB"))
				slog.Error("can't save server connection to DB", "error", err)
				return
			}

			registry.Reconfigure(sessionModel.UserID, &connectionModel)

			w.WriteHeader(http.StatusOK)
		}))
}
