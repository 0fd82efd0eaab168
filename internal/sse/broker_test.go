package sse

import (
	"strings"
	"testing"
	"time"
)

func recvWithTimeout(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe()
	b.Publish(Event{Type: "ping", Data: map[string]string{"k": "v"}})

	msg := recvWithTimeout(t, ch)
	if !strings.Contains(msg, "event: ping") || !strings.Contains(msg, `"k":"v"`) {
		t.Errorf("msg = %q", msg)
	}
}

func TestBroker_NoteEvents(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe()

	b.PublishNoteEvent("created", "u1")
	msg := recvWithTimeout(t, ch)
	if !strings.Contains(msg, "event: note.created") || !strings.Contains(msg, `"uid":"u1"`) {
		t.Errorf("msg = %q", msg)
	}

	b.PublishNoteEvent("deleted", "u1")
	msg = recvWithTimeout(t, ch)
	if !strings.Contains(msg, "event: note.deleted") {
		t.Errorf("msg = %q", msg)
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe()
	for b.ClientCount() != 1 {
		time.Sleep(time.Millisecond)
	}
	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestBroker_CloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel not closed after broker close")
	}
	// Publishing after close must not panic or block.
	b.Publish(Event{Type: "late"})
	b.PublishNoteEvent("created", "u1")
	if ch2 := b.Subscribe(); ch2 != nil {
		if _, ok := <-ch2; ok {
			t.Error("post-close subscribe returned a live channel")
		}
	}
}
