package domain

import (
	"errors"
	"fmt"
)

// ErrResetNotConfirmed is returned when reset is called without confirmation.
var ErrResetNotConfirmed = errors.New("reset not confirmed: set confirm to true to delete the conversation state")

// ConversationNotFoundError is returned when no conversation exists for a
// project branch. Callers are expected to start one explicitly.
type ConversationNotFoundError struct {
	ConversationID string
	ProjectPath    string
	Branch         string
}

func (e *ConversationNotFoundError) Error() string {
	if e.ProjectPath == "" {
		return fmt.Sprintf("conversation not found: %s; use start_development to choose a workflow first", e.ConversationID)
	}
	return fmt.Sprintf("no development conversation for project %s on branch %s; use start_development to choose a workflow first",
		e.ProjectPath, e.Branch)
}

// IsNotFound reports whether err is a ConversationNotFoundError.
func IsNotFound(err error) bool {
	var nf *ConversationNotFoundError
	return errors.As(err, &nf)
}
