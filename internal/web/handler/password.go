package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/template"
)

// PasswordForgot issues a single-use change-password token for the
// account behind the submitted address. The response is the same
// whether or not the address exists.
func PasswordForgot(logger *slog.Logger, tokens *token.Handler, accountStore AccountDirectory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			renderForgot(w, logger, false)
		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				http.Error(w, "malformed form body", http.StatusBadRequest)
				return
			}

			email := strings.TrimSpace(r.PostForm.Get("email"))
			account, err := accountStore.GetByEmail(r.Context(), email)
			if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
				logger.Error("account lookup failed", "error", err)
				http.Error(w, "temporary failure", http.StatusInternalServerError)
				return
			}

			if account != nil && account.Activated {
				pass := tokens.GenerateRandom()
				resetToken, err := tokens.CreateChangePasswordToken(r.Context(), account.ID, pass)
				if err != nil {
					logger.Error("minting change password token failed", "error", err)
					http.Error(w, "temporary failure", http.StatusInternalServerError)
					return
				}

				// TODO: hand the link to the mailer once it lands; for
				// now operators can recover it from the debug log.
				logger.Info("password reset requested", "account", account.ID)
				logger.Debug("password reset link",
					"link", "/password/reset?token="+token.Serialize(resetToken.ID, pass))
			}

			renderForgot(w, logger, true)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// PasswordReset consumes a change-password or set-password token and
// stores the new password hash.
func PasswordReset(logger *slog.Logger, tokens *token.Handler, accountStore AccountDirectory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serialized := r.URL.Query().Get("token")
			if _, err := checkedPasswordToken(r, tokens, serialized); err != nil {
				renderPasswordError(w, logger)
				return
			}
			renderReset(w, logger, serialized, "")
		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				http.Error(w, "malformed form body", http.StatusBadRequest)
				return
			}

			serialized := r.PostForm.Get("token")
			resetToken, err := checkedPasswordToken(r, tokens, serialized)
			if err != nil {
				renderPasswordError(w, logger)
				return
			}

			password := r.PostForm.Get("password")
			if len(password) < 8 {
				renderReset(w, logger, serialized, "password must be at least 8 characters")
				return
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				logger.Error("hashing password failed", "error", err)
				http.Error(w, "temporary failure", http.StatusInternalServerError)
				return
			}

			if _, err := tokens.Revoke(r.Context(), resetToken.ID); err != nil {
				logger.Error("consuming password token failed", "error", err)
				http.Error(w, "temporary failure", http.StatusInternalServerError)
				return
			}
			if err := accountStore.SetPassword(r.Context(), resetToken.AccountID, hash); err != nil {
				logger.Error("storing password failed", "error", err)
				http.Error(w, "temporary failure", http.StatusInternalServerError)
				return
			}

			http.Redirect(w, r, "/login", http.StatusSeeOther)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// checkedPasswordToken accepts either password token kind; change for
// resets of a known password, set for accounts that never had one.
func checkedPasswordToken(r *http.Request, tokens *token.Handler, serialized string) (*token.Token, error) {
	if t, err := tokens.GetCheckedToken(r.Context(), serialized, token.KindChangePassword); err == nil {
		return t, nil
	}
	return tokens.GetCheckedToken(r.Context(), serialized, token.KindSetPassword)
}

func renderForgot(w http.ResponseWriter, logger *slog.Logger, sent bool) {
	data := struct{ Sent bool }{Sent: sent}
	if err := template.Render(w, http.StatusOK, "password_forgot", data); err != nil {
		logger.Error("rendering forgot page failed", "error", err)
	}
}

func renderReset(w http.ResponseWriter, logger *slog.Logger, serialized, errorMessage string) {
	status := http.StatusOK
	if errorMessage != "" {
		status = http.StatusBadRequest
	}

	data := struct {
		Token string
		Error string
	}{
		Token: serialized,
		Error: errorMessage,
	}
	if err := template.Render(w, status, "password_reset", data); err != nil {
		logger.Error("rendering reset page failed", "error", err)
	}
}

func renderPasswordError(w http.ResponseWriter, logger *slog.Logger) {
	data := struct{ Message string }{Message: "this link is invalid or has expired"}
	if err := template.Render(w, http.StatusBadRequest, "error", data); err != nil {
		logger.Error("rendering error page failed", "error", err)
	}
}
