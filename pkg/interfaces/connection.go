package interfaces

// Connection represents one realtime client connection.
// Implementations must make WriteJSON safe for concurrent use; the
// single-writer pattern is the expected mechanism.
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe).
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources. Idempotent.
	Close() error

	// ID returns the unique connection ID assigned at creation.
	ID() string

	// Email returns the authenticated identity, empty before admission.
	Email() string

	// Username returns the display name from the verified credential.
	Username() string

	// BoardID returns the board this connection is scoped to.
	BoardID() string

	// IsAdmitted reports whether credentials have been set after a
	// successful handshake.
	IsAdmitted() bool
}
