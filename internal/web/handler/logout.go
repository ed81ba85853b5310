package handler

import (
	"log/slog"
	"net/http"

	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/token"
)

// Logout closes the browser session. The sid token and everything
// descended from it (authorization codes and the tokens they produced,
// minus offline grants) are revoked.
func Logout(cfg *config.Config, logger *slog.Logger, tokens *token.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if sessionToken := currentSession(r); sessionToken != nil {
			if _, err := tokens.Revoke(r.Context(), sessionToken.ID); err != nil {
				logger.Error("revoking session failed", "error", err)
			}
			if err := tokens.RevokeDescendants(r.Context(), sessionToken.ID); err != nil {
				logger.Error("revoking session descendants failed", "error", err)
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cfg.Server.IsProduction(),
			SameSite: http.SameSiteLaxMode,
		})

		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}
