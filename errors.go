package sheetagent

import (
	"errors"
	"fmt"
)

var (
	ErrNoProvider = errors.New("sheetagent: provider is required")
	ErrNoRegistry = errors.New("sheetagent: tool registry is required")
	ErrNoBackend  = errors.New("sheetagent: backend client is required")
)

// MalformedCallError signals that the model emitted a tool call the
// provider could not decode. The loop treats it as terminal only when no
// tool call has executed yet in the current run; afterwards it is
// downgraded to a partial-completion status.
type MalformedCallError struct {
	Detail string
}

func (e *MalformedCallError) Error() string {
	return "model emitted a malformed function call: " + e.Detail
}

// IsMalformedCall reports whether err is (or wraps) a MalformedCallError.
func IsMalformedCall(err error) bool {
	var target *MalformedCallError
	return errors.As(err, &target)
}

// malformedCallGuidance is the user-facing explanation returned when a
// malformed call arrives before any tool has run.
func malformedCallGuidance(err error) error {
	return fmt.Errorf("the model generated a malformed function call. This usually happens when:\n"+
		"1. The request is too complex (try breaking it into smaller steps)\n"+
		"2. The function call payload is too large\n"+
		"3. Multiple function calls are generated simultaneously\n\n"+
		"Error details: %v\n\n"+
		"Try rephrasing your request or asking for one step at a time", err)
}
