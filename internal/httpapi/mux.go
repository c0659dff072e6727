package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
)

// NewMux returns a mux with the health check registered; feature modules add
// their own routes to it.
func NewMux(db *sql.DB, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, logger)
	return mux
}
