package route

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"remcal/src-server/store"
	"remcal/src-server/utils"
)

type SessionCtxKeyType string

const (
	SessionCtxKey           SessionCtxKeyType = "session"
	SessionSecretCookieName string            = "session-secret"
)

// AuthMiddleware rejects requests without a live session cookie and hands
// the session model to the wrapped handler through the request context.
func AuthMiddleware(as *utils.AppState, db *store.Store, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// extract session secret from cookies
		sessionSecret := func() string {
			sessionCookie, err := r.Cookie(SessionSecretCookieName)
			if err == nil {
				return strings.TrimSpace(sessionCookie.Value)
			}
			return ""
		}()
		if sessionSecret == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Session secret cookie not found"))
			return
		}

		startTimer := time.Now()
		sessionModel, err := db.GetSession(r.Context(), sessionSecret)
		switch {
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get session model from DB"))
			slog.Error("can't get session model from DB", "error", err)
			return
		case sessionModel == nil:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Session secret not found"))
			return
		}
		as.MetricChans.DatabaseReadForAuthMiddleware <- float64(time.Since(startTimer).Microseconds())

		if sessionModel.Expired() {
			if err := db.DeleteSession(r.Context(), sessionSecret); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete session model in DB"))
				slog.Error("can't delete session model in DB", "error", err)
				return
			}

			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Session expired"))
			return
		}

		ctx := context.WithValue(r.Context(), SessionCtxKey, sessionModel)
		next(w, r.WithContext(ctx))
	}
}
