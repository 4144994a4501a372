package main

import (
	"log/slog"

	"github.com/openvoxel/worldsync/proto"
)

// Lifecycle reacts to transport connect and disconnect events, driving
// catch-up replay through the stores and announcements through the router.
type Lifecycle struct {
	world   *WorldStore
	players *PlayerStore
	router  *Router
	log     *slog.Logger
}

func NewLifecycle(world *WorldStore, players *PlayerStore, router *Router, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		world:   world,
		players: players,
		router:  router,
		log:     log,
	}
}

// HandleConnect brings sess to parity with current state and announces it.
//
// The store snapshots, the router registration and the replay all run under
// Router.Join's barrier: a broadcast racing the join either committed before
// the snapshots (so its event is in the replay) or queues behind it. The
// joiner never receives a delta ahead of the snapshot frame it belongs to.
func (l *Lifecycle) HandleConnect(sess *Session) {
	var self proto.PlayerState
	var blocks int
	err := l.router.Join(sess, func() []Frame {
		cells := l.world.Snapshot()
		blocks = len(cells)
		var prior []proto.PlayerState
		self, prior = l.players.Register(sess)
		replay := make([]Frame, 0, len(cells)+len(prior))
		for _, c := range cells {
			replay = append(replay, Frame{Tag: proto.TagPlaceBlock, Payload: proto.EncodeBlock(c)})
		}
		for _, st := range prior {
			replay = append(replay, Frame{Tag: proto.TagSpawn, Payload: proto.EncodeState(st)})
		}
		return replay
	})
	if err != nil {
		// The peer is likely already gone; the read loop will notice and
		// run the disconnect path.
		l.log.Warn("catch-up replay failed",
			"owner", sess.OwnerID(), "sid", sess.TraceID(), "err", err)
	}

	sess.Activate()
	l.router.ToAllExcept(sess, proto.TagSpawn, proto.EncodeState(self))
	l.log.Info("player joined",
		"owner", sess.OwnerID(), "sid", sess.TraceID(),
		"players", l.players.Len(), "blocks", blocks)
}

// HandleDisconnect tears sess down and tells the remaining peers. Disconnect
// is the only cancellation signal at this layer, so cleanup must be complete:
// the player entry is removed, never leaked.
func (l *Lifecycle) HandleDisconnect(sess *Session) {
	sess.MarkDisconnected()
	l.router.Remove(sess)
	if _, ok := l.players.Unregister(sess); !ok {
		return
	}
	l.router.ToAll(proto.TagDespawn, proto.EncodeDespawn(sess.OwnerID()))
	l.log.Info("player left",
		"owner", sess.OwnerID(), "sid", sess.TraceID(), "players", l.players.Len())
}
