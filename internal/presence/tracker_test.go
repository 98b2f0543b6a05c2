package presence

import (
	"reflect"
	"testing"
)

func TestTrackerOnlineRequiresBothSignals(t *testing.T) {
	tracker := NewTracker()

	if tracker.Online(1) {
		t.Error("Unknown agent should be offline")
	}

	t.Run("connection without declaration", func(t *testing.T) {
		tracker.OnConnect(1)
		if tracker.Online(1) {
			t.Error("Connected but undeclared agent should be offline")
		}
	})

	t.Run("declaration completes the pair", func(t *testing.T) {
		tracker.SetDeclaredOnline(1, true)
		if !tracker.Online(1) {
			t.Error("Declared and connected agent should be online")
		}
	})

	t.Run("declaration without connection", func(t *testing.T) {
		tracker.SetDeclaredOnline(2, true)
		if tracker.Online(2) {
			t.Error("Declared but disconnected agent should be offline")
		}
	})

	t.Run("withdrawing the declaration", func(t *testing.T) {
		tracker.SetDeclaredOnline(1, false)
		if tracker.Online(1) {
			t.Error("Agent should go offline when availability is withdrawn")
		}
	})
}

func TestTrackerConnectionCounting(t *testing.T) {
	tracker := NewTracker()
	tracker.SetDeclaredOnline(1, true)

	tracker.OnConnect(1)
	tracker.OnConnect(1)

	tracker.OnDisconnect(1)
	if !tracker.Online(1) {
		t.Error("Agent with a remaining connection should stay online")
	}

	tracker.OnDisconnect(1)
	if tracker.Online(1) {
		t.Error("Agent should go offline after the last disconnect")
	}

	// Spurious disconnects must not underflow the count.
	tracker.OnDisconnect(1)
	tracker.OnConnect(1)
	if !tracker.Online(1) {
		t.Error("A single connect after spurious disconnects should bring the agent online")
	}
}

func TestTrackerListOnline(t *testing.T) {
	tracker := NewTracker()

	for _, id := range []int64{5, 3, 9} {
		tracker.SetDeclaredOnline(id, true)
		tracker.OnConnect(id)
	}
	// Connected but not declared.
	tracker.OnConnect(7)
	// Declared but not connected.
	tracker.SetDeclaredOnline(11, true)

	got := tracker.ListOnline()
	want := []int64{3, 5, 9}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
