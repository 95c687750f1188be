package crogger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrMissingToken is returned by New when Config.Token is empty.
	ErrMissingToken = errors.New("crogger: token is required")
	// ErrMissingDataset is returned by New when Config.Dataset is empty.
	ErrMissingDataset = errors.New("crogger: dataset is required")
	// ErrHookPanic marks a transform that panicked.
	ErrHookPanic = errors.New("panicked")
	// ErrErrorPanic marks an error value passed to Err whose methods panicked.
	ErrErrorPanic = errors.New("error value panicked")
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// errorStack returns the stack text for err. captured is used when err
// carries no stack of its own.
func errorStack(err error, captured pkgerrors.StackTrace) string {
	var withStack interface{ Stack() string }
	if errors.As(err, &withStack) {
		return withStack.Stack()
	}

	var st stackTracer
	if errors.As(err, &st) {
		return formatStack(st.StackTrace())
	}
	return formatStack(captured)
}

func formatStack(st pkgerrors.StackTrace) string {
	return strings.TrimPrefix(fmt.Sprintf("%+v", st), "\n")
}

// errorName returns the name reported for err: its ErrorName method if it
// has one, else the type name of the innermost error.
func errorName(err error) string {
	var named interface{ ErrorName() string }
	if errors.As(err, &named) {
		return named.ErrorName()
	}

	t := reflect.TypeOf(rootCause(err))
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// rootCause follows both Cause and Unwrap chains to the innermost error.
func rootCause(err error) error {
	for {
		var next error
		switch e := err.(type) {
		case interface{ Cause() error }:
			next = e.Cause()
		case interface{ Unwrap() error }:
			next = e.Unwrap()
		}
		if next == nil {
			return err
		}
		err = next
	}
}
