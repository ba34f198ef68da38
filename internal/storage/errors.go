package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrSinkUnavailable marks transport-level failures: connection refused,
	// timeouts, 5xx responses.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrSchemaRejected marks a destination refusing to create an index with
	// the given schema.
	ErrSchemaRejected = errors.New("schema rejected")
)

// ItemFailure describes one rejected document of a bulk submission.
type ItemFailure struct {
	Position int // index of the document within the batch
	Status   int
	Type     string
	Reason   string
}

// PartialFailureError reports a bulk submission in which some documents were
// rejected. The whole run treats it as fatal.
type PartialFailureError struct {
	Index        string
	Submitted    int
	Acknowledged int
	Failed       []ItemFailure
}

func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "index %s: %d of %d documents rejected", e.Index, len(e.Failed), e.Submitted)
	// The first few reasons are enough to diagnose a mapping problem.
	for i, f := range e.Failed {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failed)-3)
			break
		}
		fmt.Fprintf(&b, "; #%d status=%d %s: %s", f.Position, f.Status, f.Type, f.Reason)
	}
	return b.String()
}

// Unavailable wraps err as ErrSinkUnavailable with context.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSinkUnavailable, err)
}

// Rejected wraps err as ErrSchemaRejected with context.
func Rejected(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSchemaRejected, err)
}

// IsConnError reports whether err looks like a transport failure rather than
// a statement the destination refused.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Classify wraps a SQL error as ErrSinkUnavailable when it is a transport
// failure, and as ErrSchemaRejected otherwise.
func Classify(op string, err error) error {
	if IsConnError(err) {
		return Unavailable(op, err)
	}
	return Rejected(op, err)
}
