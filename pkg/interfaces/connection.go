package interfaces

// Conn is the transport-level participant seen by the router: an identity,
// a role, and a way to push an outbound event. It owns no session data.
type Conn interface {
	UserID() string
	Role() string
	Send(v interface{}) error
	Close() error
}
