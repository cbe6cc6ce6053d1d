// Package oops attaches stack traces to errors so that failures deep inside a crawl can be traced
// back from a single log line.
package oops

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Error struct {
	Inner StackTracer
}

type StackTracer interface {
	Error() string
	StackTrace() errors.StackTrace
}

func (err *Error) Error() string {
	return err.Inner.Error()
}

func (err *Error) Unwrap() error {
	return errors.Unwrap(err.Inner)
}

func (err *Error) Is(target error) bool {
	return errors.Is(err.Inner, target)
}

func (err *Error) As(target any) bool {
	return errors.As(err.Inner, target)
}

func (err *Error) StackTrace() errors.StackTrace {
	return err.Inner.StackTrace()
}

// Stack renders the frames one per line, innermost first.
func (err *Error) Stack() string {
	var b strings.Builder
	for i, frame := range err.StackTrace() {
		if i > 0 {
			b.WriteString("\n")
		}
		frameText, _ := frame.MarshalText()
		b.Write(frameText)
	}
	return b.String()
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}

	return &Error{
		Inner: errors.WithStack(err).(StackTracer),
	}
}

func Wrapf(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	inner := errors.Wrapf(err, format, a...)
	return &Error{
		Inner: inner.(StackTracer),
	}
}

func New(message string) error {
	return &Error{
		Inner: errors.New(message).(StackTracer),
	}
}

func Newf(format string, a ...any) error {
	return &Error{
		Inner: errors.WithStack(fmt.Errorf(format, a...)).(StackTracer),
	}
}
