package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/calmid/go-grant/internal/web/encoding"
)

type healthResponse struct {
	Status string `json:"status"`
}

func Health(logger *slog.Logger, database *sql.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := database.PingContext(r.Context()); err != nil {
			logger.Error("health check failed", "error", err)
			_ = encoding.Encode(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
			return
		}

		_ = encoding.Encode(w, http.StatusOK, healthResponse{Status: "ok"})
	})
}
