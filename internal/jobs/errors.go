package jobs

import "errors"

var (
	ErrInvalidJobType      = errors.New("invalid job type")
	ErrInvalidJobPayload   = errors.New("invalid job payload")
	ErrPayloadTypeMismatch = errors.New("payload type mismatch for job type")
	ErrAlreadyRegistered   = errors.New("job type already registered")
	ErrNotRegistered       = errors.New("job type not registered")
)
