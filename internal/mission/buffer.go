package mission

import (
	"sync"

	"github.com/tiiuae/control_interface/internal/geo"
)

// Buffer is the queue of local waypoints waiting for the next mission upload.
type Buffer struct {
	mu     sync.Mutex
	points []geo.LocalWaypoint
}

func NewBuffer() *Buffer {
	return &Buffer{points: make([]geo.LocalWaypoint, 0)}
}

func (b *Buffer) Append(points ...geo.LocalWaypoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = append(b.points, points...)
}

// DrainAll empties the buffer and returns what it held, in insertion order.
func (b *Buffer) DrainAll() []geo.LocalWaypoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.points
	b.points = make([]geo.LocalWaypoint, 0)
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = make([]geo.LocalWaypoint, 0)
}

func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points) == 0
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// Snapshot returns a copy of the buffered waypoints.
func (b *Buffer) Snapshot() []geo.LocalWaypoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]geo.LocalWaypoint, len(b.points))
	copy(out, b.points)
	return out
}
