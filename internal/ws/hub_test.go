package ws

import "testing"

type fakeSession struct {
	unsubscribed int
}

func (f *fakeSession) Unsubscribe() {
	f.unsubscribed++
}

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub()
	session := &fakeSession{}

	hub.Add("conv-1", nil, ConnInfo{UserID: "u1"}, session)
	if hub.SessionCount("conv-1") != 1 {
		t.Fatalf("expected session to be tracked")
	}

	hub.Remove("conv-1", nil)
	if hub.SessionCount("conv-1") != 0 {
		t.Fatalf("expected session to be removed")
	}
	if session.unsubscribed != 1 {
		t.Fatalf("expected session teardown on remove, got %d", session.unsubscribed)
	}
}

func TestHubRemoveUnknownConnection(t *testing.T) {
	hub := NewHub()

	hub.Remove("conv-1", nil)
	if hub.SessionCount("conv-1") != 0 {
		t.Fatalf("expected no sessions")
	}
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub()
	first := &fakeSession{}
	second := &fakeSession{}

	hub.Add("conv-1", nil, ConnInfo{UserID: "u1"}, first)
	hub.Add("conv-2", nil, ConnInfo{UserID: "u2"}, second)

	hub.CloseAll()
	if hub.SessionCount("conv-1") != 0 || hub.SessionCount("conv-2") != 0 {
		t.Fatalf("expected all sessions dropped")
	}
	if first.unsubscribed != 1 || second.unsubscribed != 1 {
		t.Fatalf("expected every session torn down")
	}
}
