package route

import (
	"log/slog"
	"net/http"
	"net/url"

	"remcal/src-server/jwt"
	"remcal/src-server/notify"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"

	"github.com/gorilla/websocket"
)

func Websocket(muxer *http.ServeMux, as *utils.AppState, db *store.Store, registry *sync.Registry, hub *notify.Hub) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			originURL, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return originURL.Host == as.Config.GetHostname() || originURL.Host == r.Host
		},
	}

	muxer.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		// the browser websocket api can't set headers, so the handshake
		// token rides the query string
		payload, err := jwt.Decode(r.URL.Query().Get("token"), as.Config.GetJWTSecret())
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Invalid handshake token"))
			return
		}

		connectionModel, err := db.GetServerConnection(r.Context(), payload.UserID)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get server connection from DB"))
			slog.Error("can't get server connection from DB", "error", err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("can't upgrade websocket", "error", err)
			return
		}

		// only a live socket counts as a registry session; users with no
		// connection configured register nothing
		if connectionModel != nil {
			registry.SetupSyncForUser(payload.UserID, connectionModel)
			defer registry.HandleUserLogout(payload.UserID)
		}

		hub.Serve(payload.UserID, conn)
	})
}
