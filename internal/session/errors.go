package session

import "errors"

// Session lifecycle and state machine errors.
var (
	ErrSessionConflict  = errors.New("an attendance session is already active for this class")
	ErrSessionEnded     = errors.New("session has ended")
	ErrNotEnrolled      = errors.New("student is not enrolled in this session")
	ErrNoPendingRequest = errors.New("no pending join request for student")
	ErrInvalidStatus    = errors.New("status must be 'present' or 'absent'")
)
