package store

import "errors"

// ErrStoreClosed is reported by Err once Close has been called. It is the only
// failure the store ever signals; a missing record is reported through the
// return value instead.
var ErrStoreClosed = errors.New("store is closed")
