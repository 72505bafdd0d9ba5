package interfaces

// Connection is one live hub connection (one browser tab).
type Connection interface {
	// WriteJSON queues a frame for the connection's writer goroutine.
	// Safe for concurrent use.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its goroutines.
	Close() error

	// ID is unique per connection, never reused.
	ID() string

	// Principal is the authenticated identity owning the connection. Empty
	// until SetPrincipal is called.
	Principal() string

	IsAuthenticated() bool

	SetPrincipal(principal string) error
}

// Caller is whoever triggered an operation from a hub connection.
type Caller interface {
	// Principal is empty when the caller has no authenticated identity.
	Principal() string
}
