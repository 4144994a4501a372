package main

import (
	"encoding/binary"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvoxel/worldsync/proto"
)

func dialTestSocket(t *testing.T, url string) (*websocket.Conn, uint32) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("handshake read: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("handshake is %d bytes, want 4", len(data))
	}
	return conn, binary.BigEndian.Uint32(data)
}

func readSocketFrame(t *testing.T, conn *websocket.Conn) (proto.Tag, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	tag, payload, err := proto.DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return tag, payload
}

func TestWebsocketTransportSharesCoreSemantics(t *testing.T) {
	h := newHarness()
	server := NewServer(h.lifecycle, h.dispatch, testLogger())
	srv := httptest.NewServer(NewGateway(server))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	first, firstOwner := dialTestSocket(t, url)
	for i := 0; i < 121; i++ {
		tag, payload := readSocketFrame(t, first)
		if tag != proto.TagPlaceBlock {
			t.Fatalf("replay frame %d has tag %v, want place_block", i, tag)
		}
		if _, err := proto.DecodeBlock(payload); err != nil {
			t.Fatalf("replay payload: %v", err)
		}
	}

	second, secondOwner := dialTestSocket(t, url)
	if secondOwner == firstOwner {
		t.Fatalf("owner id %d was reused", secondOwner)
	}
	var spawns int
	for i := 0; i < 122; i++ {
		tag, payload := readSocketFrame(t, second)
		switch tag {
		case proto.TagPlaceBlock:
		case proto.TagSpawn:
			spawns++
			st, err := proto.DecodeState(payload)
			if err != nil {
				t.Fatalf("spawn payload: %v", err)
			}
			if st.OwnerID != firstOwner {
				t.Fatalf("spawn replay names owner %d, want %d", st.OwnerID, firstOwner)
			}
		default:
			t.Fatalf("unexpected %v frame during catch-up", tag)
		}
	}
	if spawns != 1 {
		t.Fatalf("joiner got %d spawn replays, want 1", spawns)
	}

	tag, payload := readSocketFrame(t, first)
	if tag != proto.TagSpawn {
		t.Fatalf("first peer got %v, want the newcomer's spawn", tag)
	}
	st, err := proto.DecodeState(payload)
	if err != nil {
		t.Fatalf("spawn payload: %v", err)
	}
	if st.OwnerID != secondOwner {
		t.Fatalf("spawn broadcast names owner %d, want %d", st.OwnerID, secondOwner)
	}

	place := proto.AppendFrame(nil, proto.TagPlaceBlock,
		proto.EncodeBlock(proto.GridCoordinate{X: 2.6, Y: 0.5, Z: -1.4}))
	if err := second.WriteMessage(websocket.BinaryMessage, place); err != nil {
		t.Fatalf("write place: %v", err)
	}
	want := proto.GridCoordinate{X: 3, Y: 1, Z: -1}
	for name, conn := range map[string]*websocket.Conn{"requester": second, "peer": first} {
		tag, payload := readSocketFrame(t, conn)
		if tag != proto.TagPlaceBlock {
			t.Fatalf("%s got %v, want place_block", name, tag)
		}
		got, err := proto.DecodeBlock(payload)
		if err != nil {
			t.Fatalf("place payload: %v", err)
		}
		if got != want {
			t.Fatalf("%s was told %v, want snapped %v", name, got, want)
		}
	}
}
