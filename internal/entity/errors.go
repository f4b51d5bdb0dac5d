package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder is returned when an order would be left without items.
	ErrEmptyOrder = errors.New("order must have at least one item")

	// ErrImmutableState is returned when an approved order is edited.
	ErrImmutableState = errors.New("approved orders cannot be modified")

	// ErrMissingComment is returned when a rejection carries no comment.
	ErrMissingComment = errors.New("rejection requires a comment")
)

// InvalidTransitionError reports a trigger fired from a status that does not
// allow it. The order is left untouched.
type InvalidTransitionError struct {
	Trigger Trigger
	From    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in status %s", e.Trigger, e.From)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
