package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/openvoxel/worldsync/proto"
)

// ErrUnknownSession reports a store operation for a session with no entry.
// Legitimate only when a message races its own disconnect; callers drop the
// message.
var ErrUnknownSession = errors.New("unknown session")

type playerEntry struct {
	mu    sync.Mutex
	state proto.PlayerState
}

// PlayerStore owns the session→player mapping. Structural changes and
// snapshots take the collection lock; transform updates take only the entry's
// own lock, so movement for different players never contends. When both are
// needed the collection lock is acquired first.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[*Session]*playerEntry
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{players: make(map[*Session]*playerEntry)}
}

// Register creates the player for sess at the origin and returns it together
// with the states of every player registered before this call, for spawn
// replay to the newcomer.
func (p *PlayerStore) Register(sess *Session) (proto.PlayerState, []proto.PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prior := make([]proto.PlayerState, 0, len(p.players))
	for _, e := range p.players {
		e.mu.Lock()
		prior = append(prior, e.state)
		e.mu.Unlock()
	}
	st := proto.PlayerState{OwnerID: sess.OwnerID()}
	p.players[sess] = &playerEntry{state: st}
	return st, prior
}

// ApplyMovement overwrites the transform for sess and returns the merged
// state, owner id included, ready for rebroadcast.
func (p *PlayerStore) ApplyMovement(sess *Session, pos, rot mgl32.Vec3) (proto.PlayerState, error) {
	p.mu.RLock()
	e, ok := p.players[sess]
	p.mu.RUnlock()
	if !ok {
		return proto.PlayerState{}, fmt.Errorf("movement for owner %d: %w", sess.OwnerID(), ErrUnknownSession)
	}
	e.mu.Lock()
	e.state.Position = pos
	e.state.Rotation = rot
	st := e.state
	e.mu.Unlock()
	return st, nil
}

// Snapshot returns a consistent point-in-time copy of every player state.
func (p *PlayerStore) Snapshot() []proto.PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]proto.PlayerState, 0, len(p.players))
	for _, e := range p.players {
		e.mu.Lock()
		out = append(out, e.state)
		e.mu.Unlock()
	}
	return out
}

// Unregister removes the player for sess, reporting whether one existed.
func (p *PlayerStore) Unregister(sess *Session) (proto.PlayerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.players[sess]
	if !ok {
		return proto.PlayerState{}, false
	}
	delete(p.players, sess)
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	return st, true
}

func (p *PlayerStore) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.players)
}
