// Package idgen assigns unique identifiers to client connections.
package idgen

import "sync/atomic"

// Generator produces monotonically increasing uint32 connection IDs in a
// concurrency-safe manner. The zero value starts counting at 1.
type Generator struct {
	id atomic.Uint32
}

// NewGenerator creates a Generator whose first Next() returns startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new Generator instance
func NewGenerator(startValue uint32) *Generator {
	gen := &Generator{}
	gen.id.Store(startValue)
	return gen
}

// Next returns the next unique ID by atomically incrementing the internal
// counter. It is safe for concurrent use by multiple goroutines.
//
// Returns:
//   - The next uint32 ID
func (g *Generator) Next() uint32 {
	return g.id.Add(1)
}
