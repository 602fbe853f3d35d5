package route

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"remcal/src-server/jwt"
	"remcal/src-server/model"
	"remcal/src-server/store"
	"remcal/src-server/sync"
	"remcal/src-server/utils"

	"github.com/google/uuid"
)

func Auth(muxer *http.ServeMux, as *utils.AppState, db *store.Store, registry *sync.Registry) {
	type LoginReqBody struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	// login; the first login for an unknown username claims it
	muxer.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		// parse request body
		var reqBody LoginReqBody
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid request body"))
			return
		}
		if reqBody.Username == "" || reqBody.Password == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Please provide a username and password"))
			return
		}

		userModel, err := db.GetUserByUsername(r.Context(), reqBody.Username)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't get user model from DB"))
			slog.Error("can't get user model from DB", "error", err)
			return
		}
		switch {
		case userModel == nil:
			passwordHash, err := utils.HashPassword(reqBody.Password)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't hash password"))
				slog.Error("can't hash password", "error", err)
				return
			}
			userModel = &model.User{
				ID:           uuid.NewString(),
				Username:     reqBody.Username,
				PasswordHash: passwordHash,
			}
			if err := db.CreateUser(r.Context(), userModel); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't insert user model to DB"))
				slog.Error("can't insert user model to DB", "error", err)
				return
			}
			slog.Info("created new user", "username", reqBody.Username)
		case !utils.VerifyPassword(userModel.PasswordHash, reqBody.Password):
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Invalid username or password"))
			return
		}

		// create new sessionModel for session
		newSessionSecret := uuid.NewString()
		expiresAt := time.Now().Add(as.Config.GetJWTExpire())
		if err := db.CreateSession(r.Context(), &model.Session{
			Secret:    newSessionSecret,
			UserID:    userModel.ID,
			CreatedAt: time.Now().Unix(),
			ExpiresAt: expiresAt.Unix(),
		}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't insert session model to DB"))
			slog.Error("can't insert session model to DB", "error", err)
			return
		}

		// the websocket endpoint authenticates with this token instead of
		// the cookie
		handshakeToken, err := jwt.Encode(jwt.Payload{
			UserID:    userModel.ID,
			UserName:  userModel.Username,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: expiresAt.Unix(),
		}, as.Config.GetJWTSecret())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't create handshake token"))
			slog.Error("can't create handshake token", "error", err)
			return
		}

		w.Header().Set("Set-Cookie", SessionSecretCookieName+"="+newSessionSecret+"; Path=/; HttpOnly; SameSite=Lax")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(fmt.Sprintf(`{"handshakeToken": "%s"}`, handshakeToken)))
	})

	// logout
	muxer.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		sessionSecret := func() string {
			sessionCookie, err := r.Cookie(SessionSecretCookieName)
			if err == nil {
				return strings.TrimSpace(sessionCookie.Value)
			}
			return ""
		}()
		if sessionSecret != "" {
			sessionModel, err := db.GetSession(r.Context(), sessionSecret)
			switch {
			case err != nil:
				slog.Error("can't get session model from DB", "error", err)
			case sessionModel != nil:
				if err := db.DeleteSession(r.Context(), sessionSecret); err != nil {
					slog.Error("can't delete session model in DB", "error", err)
				}
				registry.HandleUserLogout(sessionModel.UserID)
			}
		}

		w.Header().Set("Set-Cookie", SessionSecretCookieName+"=; Path=/; HttpOnly; SameSite=Lax")
		w.WriteHeader(http.StatusOK)
	})
}
