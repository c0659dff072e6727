package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
)

// NewServer wraps h with request logging and panic recovery. Panics are
// answered with 500 and logged at error level.
func NewServer(addr string, h http.Handler, logger *slog.Logger) *http.Server {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(false),
	)
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(logger, recovery(h)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
