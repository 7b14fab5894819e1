package server

import (
	"errors"

	"github.com/limpsquid/go-remote-window/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via
// errors.Is; mirrors the teacher's internal/server/errors.go.
var (
	ErrListen  = errors.New("listen")
	ErrAccept  = errors.New("accept")
	ErrConnRun = errors.New("conn_run")
	ErrContext = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRun):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
