// Package uuid provides run ID generation.
package uuid

import "github.com/google/uuid"

// Generator implements pipeline.IDGenerator using random UUIDs.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh UUID string.
func (Generator) NewID() string {
	return uuid.NewString()
}
