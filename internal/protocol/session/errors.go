package session

import "errors"

var (
	ErrConnect         = errors.New("session: connect failed")
	ErrShutdownTimeout = errors.New("session: worker did not stop in time")
	ErrClosed          = errors.New("session: manager closed")
	ErrInvalidEndpoint = errors.New("session: invalid endpoint")
)
