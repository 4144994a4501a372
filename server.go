package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/hashicorp/yamux"

	"github.com/openvoxel/worldsync/proto"
)

// Server hosts the synchronization core behind its transports. It allocates
// owner ids and runs one read loop per session; the websocket gateway shares
// both through run.
type Server struct {
	clientid  uint32
	lifecycle *Lifecycle
	dispatch  *Dispatcher
	log       *slog.Logger
}

func NewServer(lifecycle *Lifecycle, dispatch *Dispatcher, log *slog.Logger) *Server {
	return &Server{
		lifecycle: lifecycle,
		dispatch:  dispatch,
		log:       log,
	}
}

func (s *Server) nextOwnerID() uint32 {
	return atomic.AddUint32(&s.clientid, 1)
}

// ServeTCP accepts connections until the listener fails for good; a
// transient accept error is logged and retried. Each connection gets an
// owner id, the id handshake, and a yamux session carrying one frame stream
// opened by the client.
func (s *Server) ServeTCP(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("accept failed", "err", err)
				continue
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	id := s.nextOwnerID()
	// Send the allocated id to the peer, handshake done.
	if err := binary.Write(conn, binary.BigEndian, id); err != nil {
		s.log.Warn("handshake failed", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	mux, err := yamux.Server(conn, nil)
	if err != nil {
		s.log.Warn("yamux setup failed", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	stream, err := mux.Accept()
	if err != nil {
		s.log.Warn("stream accept failed", "addr", conn.RemoteAddr(), "owner", id, "err", err)
		return
	}
	sess := NewSession(id, newStreamConn(stream))
	s.log.Info("connection accepted", "addr", conn.RemoteAddr(), "owner", id, "sid", sess.TraceID())
	s.run(sess)
	s.log.Info("connection closed", "addr", conn.RemoteAddr(), "owner", id)
}

// run drives a session through its whole life: join, read until the peer
// goes away, then tear down. Shared by every transport.
func (s *Server) run(sess *Session) {
	s.lifecycle.HandleConnect(sess)
	s.readLoop(sess)
	s.lifecycle.HandleDisconnect(sess)
}

func (s *Server) readLoop(sess *Session) {
	for {
		tag, payload, err := sess.tc.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read loop ended",
					"owner", sess.OwnerID(), "sid", sess.TraceID(), "err", err)
			}
			return
		}
		s.dispatch.Dispatch(sess, tag, payload)
	}
}

// streamConn frames the wire protocol over a byte stream.
type streamConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func newStreamConn(conn net.Conn) *streamConn {
	return &streamConn{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

func (c *streamConn) WriteFrame(tag proto.Tag, payload []byte) error {
	return proto.WriteFrame(c.conn, tag, payload)
}

func (c *streamConn) ReadFrame() (proto.Tag, []byte, error) {
	return proto.ReadFrame(c.r)
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}
