package main

import (
	"testing"

	"github.com/openvoxel/worldsync/proto"
)

func newRouterWith(sessions ...*Session) *Router {
	r := NewRouter(testLogger())
	for _, s := range sessions {
		r.sessions[s.OwnerID()] = s
	}
	return r
}

func TestToAllReachesEveryone(t *testing.T) {
	c1, c2 := &fakeConn{}, &fakeConn{}
	s1, s2 := NewSession(1, c1), NewSession(2, c2)
	r := newRouterWith(s1, s2)

	payload := proto.EncodeDespawn(7)
	r.ToAll(proto.TagDespawn, payload)

	for i, c := range []*fakeConn{c1, c2} {
		got := c.byTag(proto.TagDespawn)
		if len(got) != 1 {
			t.Fatalf("recipient %d got %d frames, want 1", i+1, len(got))
		}
	}
}

func TestToAllExceptSkipsSender(t *testing.T) {
	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	s1, s2, s3 := NewSession(1, c1), NewSession(2, c2), NewSession(3, c3)
	r := newRouterWith(s1, s2, s3)

	r.ToAllExcept(s2, proto.TagDespawn, proto.EncodeDespawn(2))

	if n := len(c2.sent()); n != 0 {
		t.Fatalf("sender received %d frames, want 0", n)
	}
	for i, c := range []*fakeConn{c1, c3} {
		if n := len(c.sent()); n != 1 {
			t.Fatalf("recipient %d got %d frames, want 1", i+1, n)
		}
	}
}

func TestFailedRecipientDoesNotAbortFanOut(t *testing.T) {
	c1, c2, c3 := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	s1, s2, s3 := NewSession(1, c1), NewSession(2, c2), NewSession(3, c3)
	r := newRouterWith(s1, s2, s3)

	r.ToAll(proto.TagDespawn, proto.EncodeDespawn(1))

	for i, c := range []*fakeConn{c1, c3} {
		if n := len(c.sent()); n != 1 {
			t.Fatalf("healthy recipient %d got %d frames, want 1", i+1, n)
		}
	}
}

func TestRemoveStopsDelivery(t *testing.T) {
	c1, c2 := &fakeConn{}, &fakeConn{}
	s1, s2 := NewSession(1, c1), NewSession(2, c2)
	r := newRouterWith(s1, s2)

	r.Remove(s1)
	r.ToAll(proto.TagDespawn, proto.EncodeDespawn(1))

	if n := len(c1.sent()); n != 0 {
		t.Fatalf("removed session received %d frames", n)
	}
	if n := len(c2.sent()); n != 1 {
		t.Fatalf("remaining session got %d frames, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("router holds %d sessions, want 1", r.Len())
	}
}
