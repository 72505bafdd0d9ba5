package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrEmptyPrincipal   = errors.New("principal cannot be empty")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
	ErrDuplicateConnection        = errors.New("connection is already registered")
)

// Handler-related errors
var (
	ErrMissingCookie    = errors.New("authentication cookie missing")
	ErrInvalidFrame     = errors.New("invalid frame")
	ErrUnsupportedFrame = errors.New("unsupported frame type")
)
