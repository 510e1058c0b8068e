package handler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/warcore/internal/model"
)

func newTestConn(userID string) *WSConn {
	return &WSConn{userID: userID, send: make(chan []byte, 256)}
}

func TestHubMembership(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	if n := hub.ConnectionCount(); n != 1 {
		t.Fatalf("connections = %d, want 1", n)
	}

	hub.Subscribe(c, "game-1")
	hub.Subscribe(c, "game-2")
	hub.Subscribe(c, "game-2")
	if n := hub.GameSubscriberCount("game-2"); n != 1 {
		t.Errorf("game-2 subscribers = %d, want 1", n)
	}

	hub.Unsubscribe(c, "game-1")
	hub.Unsubscribe(c, "game-1")
	if n := hub.GameSubscriberCount("game-1"); n != 0 {
		t.Errorf("game-1 subscribers = %d after unsubscribe", n)
	}

	hub.Unregister(c)
	if n := hub.ConnectionCount(); n != 0 {
		t.Errorf("connections = %d after unregister", n)
	}
	if n := hub.GameSubscriberCount("game-2"); n != 0 {
		t.Errorf("game-2 subscribers = %d after unregister", n)
	}
	if _, open := <-c.send; open {
		t.Error("send queue should be closed")
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	c := &WSConn{userID: "user-1", send: make(chan []byte, 1)}
	hub.Register(c)
	hub.Subscribe(c, "game-1")

	done := make(chan struct{})
	go func() {
		for range 3 {
			hub.BroadcastToGame("game-1", WSEvent{Type: EventPlayerJoined, GameID: "game-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}
	if n := len(c.send); n != 1 {
		t.Errorf("queued %d messages, want 1", n)
	}
}

func TestHubBroadcastToGame(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-2")
	c3 := newTestConn("user-3") // not subscribed

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)
	defer hub.Unregister(c3)

	hub.Subscribe(c1, "game-1")
	hub.Subscribe(c2, "game-1")

	hub.BroadcastToGame("game-1", WSEvent{
		Type:   EventPlayerJoined,
		GameID: "game-1",
		Data:   map[string]string{"nation": "Russia"},
	})

	// c1 and c2 should receive, c3 should not
	select {
	case msg := <-c1.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != EventPlayerJoined {
			t.Errorf("expected player_joined, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Error("c1 did not receive broadcast")
	}

	select {
	case <-c2.send:
		// ok
	case <-time.After(time.Second):
		t.Error("c2 did not receive broadcast")
	}

	select {
	case <-c3.send:
		t.Error("c3 should not have received broadcast")
	default:
		// ok
	}
}

func TestHubBroadcastToUser(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-1") // same user, already watching the game
	c3 := newTestConn("user-2")

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)
	defer hub.Unregister(c3)
	hub.Subscribe(c2, "game-1")

	hub.BroadcastToUser("user-1", "game-1", WSEvent{
		Type:   EventGameEnded,
		GameID: "game-1",
		Data:   map[string]string{"status": "finished"},
	})

	select {
	case <-c1.send:
		// ok
	case <-time.After(time.Second):
		t.Errorf("connection for user-1 did not receive broadcast")
	}

	for _, c := range []*WSConn{c2, c3} {
		select {
		case <-c.send:
			t.Errorf("connection of %s should not have received the message", c.userID)
		default:
			// ok
		}
	}
}

func TestHubBroadcastGameEventReachesDecider(t *testing.T) {
	hub := NewHub()
	watcher := newTestConn("user-2")
	decider := newTestConn("user-1")
	hub.Register(watcher)
	hub.Register(decider)
	defer hub.Unregister(watcher)
	defer hub.Unregister(decider)
	hub.Subscribe(watcher, "game-1")

	hub.BroadcastGameEvent("game-1", "decision_requested", model.DecisionRequest{
		GameID: "game-1", BattleID: "b-1", Kind: model.DecisionCasualties, UserID: "user-1",
	})

	for _, c := range []*WSConn{watcher, decider} {
		select {
		case msg := <-c.send:
			var event WSEvent
			json.Unmarshal(msg, &event)
			if event.Type != "decision_requested" {
				t.Errorf("%s got %s, want decision_requested", c.userID, event.Type)
			}
		default:
			t.Errorf("%s did not receive the decision", c.userID)
		}
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	// Concurrently register, subscribe, broadcast, unregister
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := newTestConn("user")
			hub.Register(c)
			hub.Subscribe(c, "game-1")
			hub.BroadcastToGame("game-1", WSEvent{Type: "test", GameID: "game-1"})
			hub.Unsubscribe(c, "game-1")
			hub.Unregister(c)
		}(i)
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastGameEvent(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "game-1")

	hub.BroadcastGameEvent("game-1", "decision_requested", map[string]string{"battle_id": "b1"})

	select {
	case msg := <-c.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != "decision_requested" {
			t.Errorf("expected decision_requested, got %s", event.Type)
		}
		if event.GameID != "game-1" {
			t.Errorf("expected game-1, got %s", event.GameID)
		}
	case <-time.After(time.Second):
		t.Error("did not receive broadcast")
	}
}

func TestHubSendTo(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	other := newTestConn("user-1")
	hub.Register(c)
	hub.Register(other)
	defer hub.Unregister(other)

	hub.SendTo(c, WSEvent{Type: EventForbidden, GameID: "game-1"})
	select {
	case msg := <-c.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != EventForbidden {
			t.Errorf("expected forbidden, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive event")
	}
	select {
	case <-other.send:
		t.Error("only the addressed connection should receive the event")
	default:
	}

	// a closed connection is skipped instead of written to
	hub.Unregister(c)
	hub.SendTo(c, WSEvent{Type: EventForbidden})
}
