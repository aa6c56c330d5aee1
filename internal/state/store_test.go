package state

import (
	"log/slog"
	"os"
	"testing"

	"sigbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func textEvent(body string) domain.Event {
	return domain.Event{
		ID:      body,
		Kind:    domain.EventText,
		Account: "main",
		Source:  "+1555",
		Body:    body,
	}
}

func TestStore_LatestAndHistory(t *testing.T) {
	s := New(10, testLogger())

	s.OnEvent(textEvent("first"))
	s.OnEvent(textEvent("second"))

	if got := s.Latest(); got == nil || got.Body != "second" {
		t.Errorf("latest: %+v", got)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Body != "first" {
		t.Errorf("messages: %+v", msgs)
	}
}

func TestStore_HistoryCap(t *testing.T) {
	s := New(3, testLogger())

	for _, b := range []string{"a", "b", "c", "d", "e"} {
		s.OnEvent(textEvent(b))
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 retained, got %d", len(msgs))
	}
	if msgs[0].Body != "c" || msgs[2].Body != "e" {
		t.Errorf("oldest dropped first: %+v", msgs)
	}
}

func TestStore_TypingNotInHistory(t *testing.T) {
	s := New(10, testLogger())

	s.OnEvent(domain.Event{
		Kind:    domain.EventTyping,
		Account: "main",
		Source:  "+1555",
		Typing:  domain.TypingStarted,
	})

	if len(s.Messages()) != 0 {
		t.Error("typing events must not appear in message history")
	}
	if s.Latest() != nil {
		t.Error("typing events must not become the latest message")
	}

	snap := s.Snapshot()
	ts, ok := snap.Typing["main"]
	if !ok || ts.Action != domain.TypingStarted {
		t.Errorf("typing status: %+v", snap.Typing)
	}
}

func TestStore_ConnectionStates(t *testing.T) {
	s := New(10, testLogger())

	if st := s.ConnectionState("main"); st != domain.StateUnknown {
		t.Errorf("unreported account: %s", st)
	}

	s.OnStatus(domain.StatusChange{Account: "main", State: domain.StateConnected})
	if st := s.ConnectionState("main"); st != domain.StateConnected {
		t.Errorf("got %s", st)
	}

	s.OnStatus(domain.StatusChange{Account: "main", State: domain.StateDisconnected})
	if st := s.ConnectionState("main"); st != domain.StateDisconnected {
		t.Errorf("got %s", st)
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := New(10, testLogger())
	s.OnEvent(textEvent("one"))

	snap := s.Snapshot()
	snap.Messages[0].Body = "mutated"

	if s.Messages()[0].Body != "one" {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestStore_AttachmentEventCounts(t *testing.T) {
	s := New(10, testLogger())
	s.OnEvent(domain.Event{
		Kind:    domain.EventAttachment,
		Account: "main",
		Attachments: []domain.AttachmentRef{
			{ID: "att-1", Filename: "pic.jpg"},
		},
	})

	if len(s.Messages()) != 1 {
		t.Error("attachment messages belong in history")
	}
}
