package main

import (
	"log/slog"

	"github.com/openvoxel/worldsync/proto"
)

// Dispatcher routes inbound tagged messages to store logic. The tag table is
// fixed at construction; there is no runtime reflection over message kinds.
//
// Nothing a peer sends can take down its read loop: malformed payloads,
// unknown tags and disconnect races are logged and dropped with no state
// mutation and no broadcast.
type Dispatcher struct {
	world    *WorldStore
	players  *PlayerStore
	router   *Router
	log      *slog.Logger
	handlers map[proto.Tag]func(*Session, []byte) error
}

func NewDispatcher(world *WorldStore, players *PlayerStore, router *Router, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		world:   world,
		players: players,
		router:  router,
		log:     log,
	}
	d.handlers = map[proto.Tag]func(*Session, []byte) error{
		proto.TagMovement:     d.onMovement,
		proto.TagPlaceBlock:   d.onPlace,
		proto.TagDestroyBlock: d.onDestroy,
	}
	return d
}

// Dispatch handles one inbound frame from sess.
func (d *Dispatcher) Dispatch(sess *Session, tag proto.Tag, payload []byte) {
	if !sess.Active() {
		d.log.Debug("frame from inactive session dropped",
			"owner", sess.OwnerID(), "tag", tag.String())
		return
	}
	h, ok := d.handlers[tag]
	if !ok {
		d.log.Warn("unknown message tag",
			"owner", sess.OwnerID(), "sid", sess.TraceID(), "tag", uint16(tag))
		return
	}
	if err := h(sess, payload); err != nil {
		d.log.Warn("message dropped",
			"owner", sess.OwnerID(), "sid", sess.TraceID(), "tag", tag.String(), "err", err)
	}
}

func (d *Dispatcher) onMovement(sess *Session, payload []byte) error {
	pos, rot, err := proto.DecodeMovement(payload)
	if err != nil {
		return err
	}
	st, err := d.players.ApplyMovement(sess, pos, rot)
	if err != nil {
		return err
	}
	// Recipients always get the full merged state so owner identity rides
	// along; the sender already knows its own transform and gets no echo.
	d.router.ToAllExcept(sess, proto.TagMovement, proto.EncodeState(st))
	return nil
}

func (d *Dispatcher) onPlace(sess *Session, payload []byte) error {
	raw, err := proto.DecodeBlock(payload)
	if err != nil {
		return err
	}
	c, applied := d.world.TryPlace(raw)
	if !applied {
		// Cell already occupied: absorb silently, no broadcast.
		return nil
	}
	// The requester hears it too: the snapped cell may differ from what it
	// sent, and the broadcast carries the canonical coordinate.
	d.router.ToAll(proto.TagPlaceBlock, proto.EncodeBlock(c))
	return nil
}

func (d *Dispatcher) onDestroy(sess *Session, payload []byte) error {
	raw, err := proto.DecodeBlock(payload)
	if err != nil {
		return err
	}
	c, applied := d.world.TryDestroy(raw)
	if !applied {
		return nil
	}
	d.router.ToAll(proto.TagDestroyBlock, proto.EncodeBlock(c))
	return nil
}
