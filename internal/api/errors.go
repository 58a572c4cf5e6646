package api

import (
	"errors"
	"fmt"
)

// ErrNoCredential is returned when the model endpoint has no usable credential.
// It is fatal: no item can make progress without it.
var ErrNoCredential = errors.New("llm credential not configured")

// TransportError wraps any failure to obtain a reply. Callers treat it as
// local to the item being processed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must halt the pipeline rather than skip an item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoCredential)
}
