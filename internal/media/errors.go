package media

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures
type Kind string

const (
	KindMediaUnreadable     Kind = "MediaUnreadable"
	KindConcatenationFailed Kind = "ConcatenationFailed"
	KindFitFailed           Kind = "FitFailed"
	KindInvalidTarget       Kind = "InvalidTarget"
	KindOverlayFailed       Kind = "OverlayFailed"
	KindMediaTimeout        Kind = "MediaTimeout"
)

// Error is returned by every Adapter operation. Detail carries the tool's
// diagnostic output so it can be shown to the user verbatim.
type Error struct {
	Kind   Kind
	Op     string
	Path   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an adapter error of the given kind.
func IsKind(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// IsRetryable reports whether resubmitting the same work may succeed.
// Only timeouts qualify; bad inputs fail the same way every time.
func IsRetryable(err error) bool {
	return IsKind(err, KindMediaTimeout)
}
