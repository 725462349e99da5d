package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator assigns segment indices within one chunk. Indices start at 0
// and increase by one per emitted segment.
type Generator struct {
	counter atomic.Int64
}

func New() *Generator {
	return &Generator{}
}

// Next returns the next index.
func (g *Generator) Next() int {
	return int(g.counter.Add(1) - 1)
}

// Count returns how many indices have been handed out.
func (g *Generator) Count() int {
	return int(g.counter.Load())
}

// Reset starts numbering again from 0 for a new chunk.
func (g *Generator) Reset() {
	g.counter.Store(0)
}

// ID returns a stable identifier for a segment, used as an event key and
// in audio file names.
func ID(encounterId string, chunkIndex, segmentIndex int) string {
	return fmt.Sprintf("%s-c%d-seg-%d", encounterId, chunkIndex, segmentIndex)
}
