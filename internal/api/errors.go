// Package api implements the programmatic HTTP surface: the request
// dispatcher, the argument codec and the credential/session resolver.
package api

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// takeStack captures the current goroutine stack for the 500 response
// body. The same trace is always logged server-side.
func takeStack() string {
	return string(debug.Stack())
}

// ErrUnauthorized means no valid session or credentials were presented.
var ErrUnauthorized = errors.New("unauthorized")

// UnsupportedInputError is an argument that could not be decoded from the
// wire format. The dispatcher maps it to 415 with the diagnostic message.
type UnsupportedInputError struct {
	Name  string
	Value string
	Err   error
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("invalid input %s, %s: %v", e.Name, e.Value, e.Err)
}

func (e *UnsupportedInputError) Unwrap() error { return e.Err }
