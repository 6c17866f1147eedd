package store

import (
	"errors"
	"fmt"
)

// ErrNoActiveProject is returned by task-brief submission when no active
// project can be resolved.
var ErrNoActiveProject = errors.New("no active project")

// ErrCardNotFound reports agent operations against an unknown card id.
type ErrCardNotFound struct {
	CardID string
}

func (e *ErrCardNotFound) Error() string {
	return fmt.Sprintf("card %s not found", e.CardID)
}

// IsCardNotFound reports whether err wraps a card-not-found error.
func IsCardNotFound(err error) bool {
	var e *ErrCardNotFound
	return errors.As(err, &e)
}
