package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/calmid/go-grant/internal/cache"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/session"
	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/template"
)

// Login renders and handles the password login form. A successful login
// opens a sid token session bound to the browser fingerprint and sends
// the user on to the continuation URL, typically back into the
// authorization endpoint.
func Login(
	cfg *config.Config,
	logger *slog.Logger,
	tokens *token.Handler,
	limiter *cache.LoginLimiter,
	accountStore AccountDirectory,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			renderLogin(w, logger, localContinue(r.URL.Query().Get("continue")), "", "")
		case http.MethodPost:
			handleLogin(w, r, cfg, logger, tokens, limiter, accountStore)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func handleLogin(
	w http.ResponseWriter,
	r *http.Request,
	cfg *config.Config,
	logger *slog.Logger,
	tokens *token.Handler,
	limiter *cache.LoginLimiter,
	accountStore AccountDirectory,
) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	continueURL := localContinue(r.PostForm.Get("continue"))
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if !limiter.Allow(r.Context(), email) {
		renderLogin(w, logger, continueURL, email, "too many attempts, try again later")
		return
	}

	account, err := accountStore.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			renderLogin(w, logger, continueURL, email, "invalid email or password")
			return
		}
		logger.Error("account lookup failed", "error", err)
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	// Unactivated accounts and wrong passwords get the same answer.
	if !account.Activated || bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		renderLogin(w, logger, continueURL, email, "invalid email or password")
		return
	}

	limiter.Reset(r.Context(), email)

	// A live session for the same account is refreshed in place; the
	// cookie and the token id stay stable.
	if sessionToken := currentSession(r); sessionToken != nil && sessionToken.AccountID == account.ID {
		if _, err := tokens.ReAuthSid(r.Context(), sessionToken); err != nil {
			logger.Error("session refresh failed", "error", err)
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, continueURL, http.StatusSeeOther)
		return
	}

	pass := tokens.GenerateRandom()
	sidToken, err := tokens.CreateSidToken(r.Context(), account.ID, session.Fingerprint(r), pass)
	if err != nil {
		logger.Error("opening session failed", "error", err)
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token.Serialize(sidToken.ID, pass),
		Path:     "/",
		MaxAge:   int(cfg.Tokens.SidToken.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, continueURL, http.StatusSeeOther)
}

func renderLogin(w http.ResponseWriter, logger *slog.Logger, continueURL, email, errorMessage string) {
	status := http.StatusOK
	if errorMessage != "" {
		status = http.StatusUnauthorized
	}

	data := struct {
		Continue string
		Email    string
		Error    string
	}{
		Continue: continueURL,
		Email:    email,
		Error:    errorMessage,
	}
	if err := template.Render(w, status, "login", data); err != nil {
		logger.Error("rendering login page failed", "error", err)
	}
}

// localContinue restricts continuation targets to local paths so the
// login page cannot be used as an open redirector.
func localContinue(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/login"
	}
	return raw
}
