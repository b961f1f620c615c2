package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("too many evaluation saves")
	ErrTrailingBody = errors.New("request body must hold a single JSON object")
)
