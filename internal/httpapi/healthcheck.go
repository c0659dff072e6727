package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"airwatch/internal/utils"
)

type healthchecker struct {
	db     *sql.DB
	logger *slog.Logger
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "failed to check database connectivity")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, logger *slog.Logger) {
	h := &healthchecker{db: db, logger: logger}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
