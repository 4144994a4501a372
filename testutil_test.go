package main

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/openvoxel/worldsync/proto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records every frame written to it. ReadFrame reports EOF so a
// read loop pointed at it ends immediately.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
}

func (c *fakeConn) WriteFrame(tag proto.Tag, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("peer gone")
	}
	c.frames = append(c.frames, Frame{Tag: tag, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *fakeConn) ReadFrame() (proto.Tag, []byte, error) {
	return 0, nil, io.EOF
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) byTag(tag proto.Tag) []Frame {
	var out []Frame
	for _, f := range c.sent() {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

type harness struct {
	world     *WorldStore
	players   *PlayerStore
	router    *Router
	lifecycle *Lifecycle
	dispatch  *Dispatcher
}

func newHarness() *harness {
	log := testLogger()
	world := NewWorldStore()
	players := NewPlayerStore()
	router := NewRouter(log)
	return &harness{
		world:     world,
		players:   players,
		router:    router,
		lifecycle: NewLifecycle(world, players, router, log),
		dispatch:  NewDispatcher(world, players, router, log),
	}
}

func (h *harness) connect(owner uint32) (*Session, *fakeConn) {
	tc := &fakeConn{}
	sess := NewSession(owner, tc)
	h.lifecycle.HandleConnect(sess)
	return sess, tc
}
