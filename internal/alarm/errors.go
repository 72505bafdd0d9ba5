package alarm

import "errors"

var (
	ErrMutatorRunning   = errors.New("alarm mutator is already running")
	ErrMutatorStopped   = errors.New("alarm mutator has stopped and cannot be restarted")
	ErrStoreUnavailable = errors.New("patient store unavailable")
)
