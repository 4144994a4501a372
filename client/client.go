// Package worldsync provides a Go client for the worldsync server's TCP
// transport.
package worldsync

import (
	"bufio"
	"encoding/binary"
	"log/slog"
	"net"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hashicorp/yamux"

	"github.com/openvoxel/worldsync/proto"
)

// Handler receives decoded server events. Callbacks run on the client's read
// goroutine, one at a time and in delivery order.
type Handler interface {
	OnSpawn(st proto.PlayerState)
	OnMovement(st proto.PlayerState)
	OnDespawn(owner uint32)
	OnBlockPlaced(c proto.GridCoordinate)
	OnBlockDestroyed(c proto.GridCoordinate)
}

type Client struct {
	// OwnerID is the global identifier the server allocated during the
	// handshake. Valid after Start returns.
	OwnerID uint32

	handler Handler

	conn   net.Conn
	mux    *yamux.Session
	stream net.Conn
	r      *bufio.Reader
	wmu    sync.Mutex
}

func NewClient(handler Handler) *Client {
	return &Client{handler: handler}
}

// Start performs the handshake on conn, opens the frame stream and begins
// dispatching inbound frames to the handler. The first frames to arrive are
// the catch-up replay: the whole world, then one spawn per present player.
func (c *Client) Start(conn net.Conn) error {
	if err := binary.Read(conn, binary.BigEndian, &c.OwnerID); err != nil {
		return err
	}
	mux, err := yamux.Client(conn, nil)
	if err != nil {
		return err
	}
	stream, err := mux.Open()
	if err != nil {
		return err
	}
	c.conn = conn
	c.mux = mux
	c.stream = stream
	c.r = bufio.NewReader(stream)
	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	for {
		tag, payload, err := proto.ReadFrame(c.r)
		if err != nil {
			return
		}
		c.dispatch(tag, payload)
	}
}

// dispatch decodes and hands off one frame. A frame the server encoded wrong
// is dropped; the stream itself stays up.
func (c *Client) dispatch(tag proto.Tag, payload []byte) {
	switch tag {
	case proto.TagSpawn:
		if st, err := proto.DecodeState(payload); err == nil {
			c.handler.OnSpawn(st)
		}
	case proto.TagMovement:
		if st, err := proto.DecodeState(payload); err == nil {
			c.handler.OnMovement(st)
		}
	case proto.TagDespawn:
		if owner, err := proto.DecodeDespawn(payload); err == nil {
			c.handler.OnDespawn(owner)
		}
	case proto.TagPlaceBlock:
		if coord, err := proto.DecodeBlock(payload); err == nil {
			c.handler.OnBlockPlaced(coord)
		}
	case proto.TagDestroyBlock:
		if coord, err := proto.DecodeBlock(payload); err == nil {
			c.handler.OnBlockDestroyed(coord)
		}
	default:
		slog.Debug("unknown frame from server", "tag", uint16(tag))
	}
}

func (c *Client) send(tag proto.Tag, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return proto.WriteFrame(c.stream, tag, payload)
}

// SendMovement reports the local player's transform. The server rebroadcasts
// it to every other participant; there is no echo back.
func (c *Client) SendMovement(pos, rot mgl32.Vec3) error {
	return c.send(proto.TagMovement, proto.EncodeMovement(pos, rot))
}

// PlaceBlock requests occupation of the cell containing raw. The server
// answers with a broadcast carrying the snapped coordinate, which may differ
// from raw; a request for an occupied cell is absorbed silently.
func (c *Client) PlaceBlock(raw proto.GridCoordinate) error {
	return c.send(proto.TagPlaceBlock, proto.EncodeBlock(raw))
}

// DestroyBlock requests clearing of the cell containing raw.
func (c *Client) DestroyBlock(raw proto.GridCoordinate) error {
	return c.send(proto.TagDestroyBlock, proto.EncodeBlock(raw))
}

func (c *Client) Close() {
	if c.mux != nil {
		c.mux.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
