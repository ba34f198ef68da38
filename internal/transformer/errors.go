package transformer

import (
	"errors"
	"fmt"
)

// ErrLookupMiss is returned by Transform when a row's reference key has no
// entry and the lookup rule asks for strict handling (on_missing: "error").
// In the default lenient mode a miss is a silent skip, not an error.
var ErrLookupMiss = errors.New("reference lookup miss")

// RowError reports a single row that failed type coercion. The row is dropped;
// ingestion continues with the next row.
type RowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: field %q value %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("field %q value %q: %v", e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
