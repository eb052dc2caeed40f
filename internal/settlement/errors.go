package settlement

import (
	"errors"
	"fmt"
)

// Kind classifies settlement failures so callers can map them to user-facing
// behavior (retry, confirm, conflict) without string matching.
type Kind string

const (
	KindInvalidAmount        Kind = "invalid_amount"
	KindOverAllocation       Kind = "over_allocation"
	KindNoTargetSelected     Kind = "no_target_selected"
	KindConfirmationRequired Kind = "confirmation_required"
	KindPreconditionFailed   Kind = "precondition_failed"
	KindAlreadySettled       Kind = "already_settled"
	KindCommitFailed         Kind = "commit_failed"
)

// Error carries a kind and a human-readable message. Commit failures wrap the
// underlying store error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// IsKind reports whether err is a settlement Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
