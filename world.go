package main

import (
	"sync"

	"github.com/openvoxel/worldsync/proto"
)

// Extent of the starting floor plane.
const (
	floorMin = -5
	floorMax = 5
	floorY   = -2
)

// WorldStore owns the set of occupied voxel cells. Every lookup happens after
// grid snap, so the set never holds two cells equal under grid comparison.
type WorldStore struct {
	mu     sync.RWMutex
	blocks map[proto.GridCoordinate]struct{}
}

// NewWorldStore seeds the deterministic 11×11 starting floor at y=-2.
func NewWorldStore() *WorldStore {
	side := floorMax - floorMin + 1
	w := &WorldStore{
		blocks: make(map[proto.GridCoordinate]struct{}, side*side),
	}
	for x := floorMin; x <= floorMax; x++ {
		for z := floorMin; z <= floorMax; z++ {
			w.blocks[proto.GridCoordinate{X: float32(x), Y: floorY, Z: float32(z)}] = struct{}{}
		}
	}
	return w
}

// TryPlace snaps raw to the grid and occupies the cell if it is free. The
// returned coordinate is the snapped one; applied=false means the cell was
// already occupied, a no-op rather than an error.
func (w *WorldStore) TryPlace(raw proto.GridCoordinate) (proto.GridCoordinate, bool) {
	c := raw.Snap()
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.blocks[c]; ok {
		return c, false
	}
	w.blocks[c] = struct{}{}
	return c, true
}

// TryDestroy snaps raw to the grid and frees the cell if it is occupied.
// applied=false means nothing was there.
func (w *WorldStore) TryDestroy(raw proto.GridCoordinate) (proto.GridCoordinate, bool) {
	c := raw.Snap()
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.blocks[c]; !ok {
		return c, false
	}
	delete(w.blocks, c)
	return c, true
}

// Snapshot returns every occupied cell as a point-in-time copy, used for
// catch-up replay to new joiners.
func (w *WorldStore) Snapshot() []proto.GridCoordinate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]proto.GridCoordinate, 0, len(w.blocks))
	for c := range w.blocks {
		out = append(out, c)
	}
	return out
}

func (w *WorldStore) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}
