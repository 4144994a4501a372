package main

import (
	"encoding/binary"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/openvoxel/worldsync/proto"
)

// Gateway serves the websocket flavor of the transport. Each binary message
// carries exactly one frame; the first message the server sends is the
// 4-byte owner id, mirroring the TCP handshake.
type Gateway struct {
	server   *Server
	upgrader websocket.Upgrader
}

func NewGateway(server *Server) *Gateway {
	return &Gateway{
		server: server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.server.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	id := g.server.nextOwnerID()
	var hs [4]byte
	binary.BigEndian.PutUint32(hs[:], id)
	if err := conn.WriteMessage(websocket.BinaryMessage, hs[:]); err != nil {
		g.server.log.Warn("websocket handshake failed", "addr", conn.RemoteAddr(), "err", err)
		return
	}

	sess := NewSession(id, &wsConn{conn: conn})
	g.server.log.Info("websocket accepted", "addr", conn.RemoteAddr(), "owner", id, "sid", sess.TraceID())
	g.server.run(sess)
	g.server.log.Info("websocket closed", "addr", conn.RemoteAddr(), "owner", id)
}

// wsConn adapts a gorilla connection to the transport boundary. The session's
// write mutex already guarantees the single concurrent writer gorilla
// requires.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteFrame(tag proto.Tag, payload []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage,
		proto.AppendFrame(nil, tag, payload))
}

func (c *wsConn) ReadFrame() (proto.Tag, []byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return proto.DecodeFrame(data)
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
