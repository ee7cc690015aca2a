package utils

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a recovered panic so worker goroutines surface it as a
// normal error instead of crashing the pool.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

// RecoverWithCallback recovers a panic in the calling goroutine and reports
// it through cb. Use as: defer RecoverWithCallback(func(err error) { ... }).
func RecoverWithCallback(cb func(err error)) {
	if r := recover(); r != nil {
		cb(&PanicError{Value: r, Stack: debug.Stack()})
	}
}
