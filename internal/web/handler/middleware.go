package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/calmid/go-grant/internal/session"
	"github.com/calmid/go-grant/internal/token"
)

const sessionCookieName = "SID"

type contextKey int

const sessionContextKey contextKey = iota

// sessionMiddleware resolves the SID cookie into the live session
// token. An absent, invalid or foreign-fingerprint cookie simply yields
// no session; the handlers decide whether that means a login redirect.
func sessionMiddleware(tokens *token.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		sidToken, err := tokens.GetCheckedToken(r.Context(), cookie.Value, token.KindSidToken)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if !session.FingerprintMatches(sidToken.Fingerprint, session.Fingerprint(r)) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sidToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentSession returns the resolved session token, or nil.
func currentSession(r *http.Request) *token.Token {
	sidToken, _ := r.Context().Value(sessionContextKey).(*token.Token)
	return sidToken
}

func logRoutes(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func handlePanic(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic while handling request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", recovered,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
