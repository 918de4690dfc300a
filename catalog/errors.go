package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports synchronously rejected input (bad channel, non-positive
// seq, empty query). Nothing is partially processed when one is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// SeqNotFoundError reports a lookup by sequence number that matched nothing.
// MaxSeq carries the channel's valid range so callers can guide a retry.
type SeqNotFoundError struct {
	Channel string
	Seq     int64
	MaxSeq  int64
}

func (e *SeqNotFoundError) Error() string {
	if e.MaxSeq <= 0 {
		return fmt.Sprintf("no clips found for channel %s", e.Channel)
	}
	return fmt.Sprintf("no clip %d for channel %s (valid range 1..%d)", e.Seq, e.Channel, e.MaxSeq)
}

// ErrAlreadyBootstrapped is returned when the one-shot bootstrap is invoked for
// a channel that already has catalog rows. Re-running would renumber every clip
// and break all external references, so the empty-state precondition is hard.
var ErrAlreadyBootstrapped = errors.New("channel catalog is not empty; bootstrap may only run once")

// ErrNotFound is the generic not-found sentinel for lookups without a range.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err represents any not-found condition.
func IsNotFound(err error) bool {
	var snf *SeqNotFoundError
	return errors.Is(err, ErrNotFound) || errors.As(err, &snf)
}

// IsValidation reports whether err is a synchronous input rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable classifies transient durable-store failures (connection problems,
// shutdown in progress) distinctly from domain errors. The core never retries;
// callers decide whether to.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"broken pipe",
		"timeout",
		"no route to host",
		"network unreachable",
		"terminating connection",
		"the database system is starting up",
		"the database system is shutting down",
		"too many connections",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
