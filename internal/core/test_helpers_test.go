package core

import (
	"strings"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNotice waits for a SERVER line in room containing substr.
func mustNotice(t *testing.T, c *Client, room, substr string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := mustEvent(t, c.Events, EventRoomMessage)
		if ev.Message.From == SystemUser && ev.Room == room && strings.Contains(ev.Message.Text, substr) {
			return ev
		}
	}
	t.Fatalf("notice %q in %q not received", substr, room)
	return nil
}

// drain discards everything currently queued for c.
func drain(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func attach(t *testing.T, h *Hub, name string) *Client {
	t.Helper()

	c := NewClient(name, "test", 0)
	if err := h.Attach(c); err != nil {
		t.Fatalf("attach %s: %v", name, err)
	}
	return c
}

func mustError(t *testing.T, c *Client, code string) *Event {
	t.Helper()

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != code {
		t.Fatalf("expected %s error, got %+v", code, ev.Error)
	}
	return ev
}
