package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks failures caused by caller supplied data rather than by
// the service itself. Handlers map it to a 4xx response.
var ErrInvalidInput = errors.New("invalid input")

// ErrMalformedSnapshot is returned by the snapshot guards when a pub/sub
// payload does not have the expected shape.
var ErrMalformedSnapshot = fmt.Errorf("%w: malformed counter snapshot", ErrInvalidInput)

var (
	ErrUnknownSport       = fmt.Errorf("%w: unknown sport", ErrInvalidInput)
	ErrUnknownUniversity  = fmt.Errorf("%w: unknown university", ErrInvalidInput)
	ErrUnknownMatchStatus = fmt.Errorf("%w: unknown match status", ErrInvalidInput)
	ErrNegativeCount      = fmt.Errorf("%w: counter values must not be negative", ErrInvalidInput)
	ErrCountOutOfRange    = fmt.Errorf("%w: counter value out of range", ErrInvalidInput)
	ErrMatchSettled       = errors.New("match result already set")
)
