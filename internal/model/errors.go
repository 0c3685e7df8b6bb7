package model

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindInvalidArgument is a caller mistake: too many cores, unknown scope.
	KindInvalidArgument Kind = iota + 1
	// KindPlatformUnavailable means the query is not supported on this
	// platform or build.
	KindPlatformUnavailable
	// KindPlatformFailure means the OS call itself failed.
	KindPlatformFailure
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrPlatformUnavailable = errors.New("platform unavailable")
	ErrPlatformFailure     = errors.New("platform failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindPlatformUnavailable:
		return ErrPlatformUnavailable
	case KindPlatformFailure:
		return ErrPlatformFailure
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned by the monitor and its platform
// sources. Detail carries free-form diagnostic text; Err the OS error, if any.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(op, detail string) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Detail: detail}
}

// Unavailable builds a KindPlatformUnavailable error.
func Unavailable(op, detail string) error {
	return &Error{Kind: KindPlatformUnavailable, Op: op, Detail: detail}
}

// Failure wraps an OS error as KindPlatformFailure.
func Failure(op string, err error) error {
	return &Error{Kind: KindPlatformFailure, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
