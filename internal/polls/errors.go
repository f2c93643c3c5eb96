package polls

import (
	"errors"

	"github.com/livepoll/backend/internal/models"
)

var (
	ErrAlreadyVoted  = errors.New("identity already voted in this poll")
	ErrPollClosed    = errors.New("poll is closed")
	ErrUnknownOption = models.ErrUnknownOption
	// ErrPersistence marks vote ledger failures. Callers may retry.
	ErrPersistence  = errors.New("vote ledger unavailable")
	ErrPollNotFound = errors.New("poll not found")
	ErrNoIdentity   = errors.New("missing voter identity")
)

// ErrorCode maps an engine error to the stable code used in API responses and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrPollClosed):
		return "poll_closed"
	case errors.Is(err, ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	case errors.Is(err, ErrPollNotFound):
		return "poll_not_found"
	case errors.Is(err, ErrNoIdentity):
		return "no_identity"
	default:
		return "internal"
	}
}
