package router

import "errors"

var (
	ErrUnknownTarget     = errors.New("unknown invocation target")
	ErrInvalidArguments  = errors.New("invalid invocation arguments")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
