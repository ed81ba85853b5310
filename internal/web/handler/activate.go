package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/template"
)

// Activate consumes an account activation token from the mailed link
// and marks the account usable.
func Activate(logger *slog.Logger, tokens *token.Handler, accountStore AccountDirectory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		activationToken, err := tokens.GetCheckedToken(r.Context(), r.URL.Query().Get("token"), token.KindAccountActivation)
		if err != nil {
			data := struct{ Message string }{Message: "this activation link is invalid or has expired"}
			if err := template.Render(w, http.StatusBadRequest, "error", data); err != nil {
				logger.Error("rendering error page failed", "error", err)
			}
			return
		}

		if _, err := tokens.Revoke(r.Context(), activationToken.ID); err != nil {
			logger.Error("consuming activation token failed", "error", err)
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		if err := accountStore.Activate(r.Context(), activationToken.AccountID); err != nil {
			logger.Error("activating account failed", "error", err)
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}

		target := activationToken.ContinueURL
		if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
			target = "/login"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}
