package commission

import "fmt"

// ValidationError reports a malformed date range. It maps to a client
// error at the HTTP boundary and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
