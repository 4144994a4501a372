package main

import (
	"log/slog"
	"sync"

	"github.com/openvoxel/worldsync/proto"
)

// Router fans frames out to the live sessions. Membership changes take the
// write lock; broadcasts copy the session list under the read lock and send
// with no lock held, so a slow peer never blocks unrelated mutations.
//
// The write lock doubles as the join barrier: Join snapshots the stores and
// registers the newcomer under it, so any concurrent broadcast either
// predates the snapshots or sees the newcomer registered.
type Router struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	log      *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{
		sessions: make(map[uint32]*Session),
		log:      log,
	}
}

// Join atomically registers sess and writes its catch-up replay. setup runs
// under the membership lock and returns the frames to replay; sess's write
// mutex is then acquired before the membership lock is released. A broadcast
// racing the join therefore either committed before the snapshots taken in
// setup or finds sess registered and queues behind the replay — the joiner
// can never observe a delta ahead of the snapshot frame it belongs to.
// Broadcasters only take a session's write mutex with no membership lock
// held, so the lock order stays membership-then-session.
func (r *Router) Join(sess *Session, setup func() []Frame) error {
	r.mu.Lock()
	replay := setup()
	r.sessions[sess.OwnerID()] = sess
	send, release := sess.HoldWrites()
	r.mu.Unlock()
	defer release()
	for _, f := range replay {
		if err := send(f.Tag, f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops sess from the live set. Frames broadcast afterwards no longer
// reach it.
func (r *Router) Remove(sess *Session) {
	r.mu.Lock()
	delete(r.sessions, sess.OwnerID())
	r.mu.Unlock()
}

// ToAll sends one frame to every live session, the originator included.
func (r *Router) ToAll(tag proto.Tag, payload []byte) {
	r.deliver(r.targets(nil), tag, payload)
}

// ToAllExcept sends one frame to every live session except sender.
func (r *Router) ToAllExcept(sender *Session, tag proto.Tag, payload []byte) {
	r.deliver(r.targets(sender), tag, payload)
}

func (r *Router) targets(skip *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s == skip {
			continue
		}
		out = append(out, s)
	}
	return out
}

// deliver attempts every recipient; a failed send is logged and skipped so
// one dying connection cannot abort the fan-out or fail the triggering
// operation.
func (r *Router) deliver(targets []*Session, tag proto.Tag, payload []byte) {
	for _, s := range targets {
		if err := s.Send(tag, payload); err != nil {
			r.log.Warn("broadcast delivery failed",
				"tag", tag.String(), "owner", s.OwnerID(), "sid", s.TraceID(), "err", err)
		}
	}
}

func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
