package session

import (
	"errors"

	"github.com/limpsquid/go-remote-window/internal/metrics"
)

// Sentinel errors, wrapped at the point of use so callers can classify
// via errors.Is; mirrors the teacher's internal/server/errors.go.
var (
	ErrRead           = errors.New("session: conn read")
	ErrWrite          = errors.New("session: conn write")
	ErrOversizeBuffer = errors.New("session: receive buffer exceeds max size")
)

// mapErrToMetric maps a wrapped sentinel error to a stable metrics label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrOversizeBuffer):
		return metrics.ErrTCPRead
	default:
		return "other"
	}
}
