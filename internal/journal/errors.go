package journal

import "errors"

var (
	ErrJournalClosed  = errors.New("journal is closed")
	ErrWriteTimeout   = errors.New("journal write timed out")
	ErrInvalidLimit   = errors.New("limit must be greater than 0")
	ErrMissingPath    = errors.New("journal path cannot be empty")
	ErrInvalidTimeout = errors.New("journal write timeout must be greater than 0")
)
