package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input; handlers map it to 400.
	ErrValidation = errors.New("invalid request")
	// ErrMissingIDs is returned when sessionId or mockId is empty.
	ErrMissingIDs = fmt.Errorf("%w: Session ID and Mock ID are required", ErrValidation)
	// ErrNotFound is returned when no session exists for the key.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate is returned by repositories when the (sessionId, mockId) key already exists.
	ErrDuplicate = errors.New("session already exists")
	// ErrVersionConflict is returned by a conditional write whose expected version is stale.
	ErrVersionConflict = errors.New("session was modified concurrently")
	// ErrSessionEnded is returned for update/end on a finalized session.
	ErrSessionEnded = errors.New("session has ended")
)

// ValidationMessage returns the client-facing text of a validation error without the sentinel prefix.
func ValidationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}
