package domain

import "github.com/google/uuid"

// IDGenerator produces globally unique identifiers for entities and events.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues time ordered UUIDv7 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var ids IDGenerator = UUIDGenerator{}

// NewID returns a new identifier from the package generator.
func NewID() string {
	return ids.NewID()
}
