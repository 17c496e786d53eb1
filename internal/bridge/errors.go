package bridge

import "fmt"

// Exit codes carried by FatalError.
const (
	// ExitVersion is used when the engine is too old, which is a clean exit.
	ExitVersion = 0
	// ExitFailure is used for every other fatal startup condition.
	ExitFailure = 1
)

// FatalError is a startup failure after which the front-end must exit.
type FatalError struct {
	Code int
	Msg  string
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(code int, msg string, err error) *FatalError {
	return &FatalError{Code: code, Msg: msg, Err: err}
}
