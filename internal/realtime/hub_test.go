package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func drain(conn *Conn) []Frame {
	var frames []Frame
	for {
		select {
		case payload := <-conn.Outbox():
			var frame Frame
			_ = json.Unmarshal(payload, &frame)
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestHub_EmitOncePerConnection(t *testing.T) {
	hub := NewHub()
	a := NewConn("a", "", 8)
	b := NewConn("b", "", 8)
	hub.Register(a)
	hub.Register(b)

	if err := hub.Join("a", "model:alert:all", "model:alert:id:1"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := hub.Join("b", "model:alert:id:2"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	delivered, err := hub.EmitFrame([]string{"model:alert:id:1", "model:alert:all"}, Frame{Event: "alert", Data: map[string]any{"verb": "updated"}})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	if frames := drain(a); len(frames) != 1 || frames[0].Event != "alert" {
		t.Fatalf("expected one alert frame for a, got %+v", frames)
	}
	if frames := drain(b); len(frames) != 0 {
		t.Fatalf("expected no frame for b, got %+v", frames)
	}
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := NewHub()
	conn := NewConn("a", "", 8)
	hub.Register(conn)
	_ = hub.Join("a", "r1", "r2")

	hub.Leave("a", "r1")
	if rooms := hub.Rooms("a"); len(rooms) != 1 || rooms[0] != "r2" {
		t.Fatalf("expected only r2, got %v", rooms)
	}

	hub.Unregister("a")
	if hub.Count() != 0 {
		t.Fatalf("expected no connections")
	}
	select {
	case <-conn.Done():
	default:
		t.Fatalf("expected connection closed")
	}
	if err := hub.Join("a", "r1"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestNotifier_Publish(t *testing.T) {
	hub := NewHub()
	conn := NewConn("a", "", 8)
	hub.Register(conn)
	_ = hub.Join("a", "model:barrel")

	relay := &fakeRelay{}
	NewNotifier(hub, relay).Publish(context.Background(), "barrel", Delivery{Rooms: []string{"model:barrel"}, Payload: map[string]any{"verb": "created", "id": 3}})

	frames := drain(conn)
	if len(frames) != 1 || frames[0].Event != "barrel" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if relay.calls != 1 {
		t.Fatalf("expected relay publish, got %d", relay.calls)
	}
}

func TestHub_EmitTiers(t *testing.T) {
	hub := NewHub()
	stays := NewConn("stays", "", 8)
	leaves := NewConn("leaves", "", 8)
	hub.Register(stays)
	hub.Register(leaves)
	_ = hub.Join("stays", "model:alert:senderTeam:1", "model:alert:receiverTeam:2")
	_ = hub.Join("leaves", "model:alert:receiverTeam:2")

	delivered := hub.Emit(
		Tier{Rooms: []string{"model:alert:senderTeam:1"}, Frame: []byte(`{"event":"alert","data":"full"}`)},
		Tier{Rooms: []string{"model:alert:receiverTeam:2"}, Frame: []byte(`{"event":"alert","data":"bare"}`)},
	)
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if frames := drain(stays); len(frames) != 1 || frames[0].Data != "full" {
		t.Fatalf("expected single full frame, got %+v", frames)
	}
	if frames := drain(leaves); len(frames) != 1 || frames[0].Data != "bare" {
		t.Fatalf("expected single bare frame, got %+v", frames)
	}
}
