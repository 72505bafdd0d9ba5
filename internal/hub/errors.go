package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrInvalidPayload    = errors.New("event payload cannot be encoded")
	ErrEmptyEvent        = errors.New("event name cannot be empty")
)
