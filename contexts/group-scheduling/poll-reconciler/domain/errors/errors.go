package errors

import "errors"

var (
	ErrMalformedEvent = errors.New("malformed gateway event")
	ErrPollNotFound   = errors.New("poll not found")
	ErrVoteNotFound   = errors.New("vote not found")
	ErrConflict       = errors.New("store row conflict")
)
