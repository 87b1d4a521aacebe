package router

import "errors"

// Router-level errors, each converted to an ERROR notice for the sender only.
var (
	ErrUnknownEvent      = errors.New("unknown event type")
	ErrNotAuthorized     = errors.New("not authorized to send this event")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMalformedPayload  = errors.New("malformed event payload")
)

// NoActiveSessionMessage is the exact wire string for the expected
// no-session condition; the student client filters on it verbatim.
const NoActiveSessionMessage = "No active attendance session"
