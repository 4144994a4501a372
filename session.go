package main

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/openvoxel/worldsync/proto"
)

// Connection states. A session starts in connecting, becomes active once the
// catch-up replay has been queued, and ends disconnected. Disconnected is
// terminal.
const (
	stateConnecting int32 = iota
	stateActive
	stateDisconnected
)

// transportConn is the surface a transport must provide: reliable delivery of
// whole frames, in the order they were written, per connection.
type transportConn interface {
	WriteFrame(tag proto.Tag, payload []byte) error
	ReadFrame() (proto.Tag, []byte, error)
	Close() error
}

// Frame pairs a tag with its payload for batch sends.
type Frame struct {
	Tag     proto.Tag
	Payload []byte
}

// Session is one live peer. The write mutex serializes outbound frames, so
// the order of Send calls is the order the peer observes.
type Session struct {
	owner uint32
	sid   string // trace id for logs
	tc    transportConn

	state int32

	wmu sync.Mutex
}

func NewSession(owner uint32, tc transportConn) *Session {
	return &Session{
		owner: owner,
		sid:   uuid.NewString(),
		tc:    tc,
	}
}

// OwnerID is the global identifier allocated at handshake time.
func (s *Session) OwnerID() uint32 { return s.owner }

// TraceID correlates log lines across this session's lifetime.
func (s *Session) TraceID() string { return s.sid }

func (s *Session) Active() bool {
	return atomic.LoadInt32(&s.state) == stateActive
}

func (s *Session) Activate() {
	atomic.CompareAndSwapInt32(&s.state, stateConnecting, stateActive)
}

func (s *Session) MarkDisconnected() {
	atomic.StoreInt32(&s.state, stateDisconnected)
}

// Send delivers one frame. Safe for concurrent use.
func (s *Session) Send(tag proto.Tag, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.tc.WriteFrame(tag, payload)
}

// HoldWrites acquires the write mutex and returns a send function that is
// valid until release is called. Frames written through send form one
// ordered unit: no concurrent Send can slip in before release. Catch-up
// replay depends on this to keep racing broadcasts behind the snapshot.
func (s *Session) HoldWrites() (send func(tag proto.Tag, payload []byte) error, release func()) {
	s.wmu.Lock()
	return s.tc.WriteFrame, s.wmu.Unlock
}

func (s *Session) Close() error {
	return s.tc.Close()
}
