// Package state keeps the latest normalized view of the bridge: recent
// messages, typing indicators, and per-account connection state. It is the
// in-process event sink behind the HTTP status surface.
package state

import (
	"log/slog"
	"sync"

	"sigbridge/internal/domain"
)

// TypingStatus is the most recent typing indicator per account. Typing
// events never enter the message history.
type TypingStatus struct {
	Source    string              `json:"source"`
	Action    domain.TypingAction `json:"action"`
	Timestamp string              `json:"timestamp,omitempty"`
}

// Snapshot is the JSON view served to consumers.
type Snapshot struct {
	Connections map[string]domain.ConnectionState `json:"connections"`
	Latest      *domain.Event                     `json:"latest_message,omitempty"`
	Messages    []domain.Event                    `json:"messages"`
	Typing      map[string]TypingStatus           `json:"typing,omitempty"`
}

// Store is an in-memory event sink with a bounded message history. No
// persistence: history survives only for the process lifetime.
type Store struct {
	mu          sync.RWMutex
	maxMessages int
	messages    []domain.Event
	latest      *domain.Event
	typing      map[string]TypingStatus
	connections map[string]domain.ConnectionState
	logger      *slog.Logger
}

// New creates a Store retaining at most maxMessages content events.
func New(maxMessages int, logger *slog.Logger) *Store {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Store{
		maxMessages: maxMessages,
		typing:      make(map[string]TypingStatus),
		connections: make(map[string]domain.ConnectionState),
		logger:      logger,
	}
}

// OnEvent implements domain.EventSink.
func (s *Store) OnEvent(evt domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch evt.Kind {
	case domain.EventTyping:
		s.typing[evt.Account] = TypingStatus{
			Source:    evt.Source,
			Action:    evt.Typing,
			Timestamp: evt.TimestampISO,
		}
	case domain.EventText, domain.EventAttachment:
		if len(s.messages) >= s.maxMessages {
			s.messages = s.messages[1:]
		}
		s.messages = append(s.messages, evt)
		s.latest = &evt
	default:
		s.logger.Debug("non-content event at state store", "kind", evt.Kind)
	}
}

// OnStatus implements domain.EventSink.
func (s *Store) OnStatus(change domain.StatusChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[change.Account] = change.State
}

// ConnectionState returns the last known state for an account, or
// StateUnknown if the account has never reported.
func (s *Store) ConnectionState(account string) domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.connections[account]; ok {
		return st
	}
	return domain.StateUnknown
}

// Latest returns the most recent content event, or nil.
func (s *Store) Latest() *domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	evt := *s.latest
	return &evt
}

// Messages returns a copy of the retained message history, oldest first.
func (s *Store) Messages() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.messages))
	copy(out, s.messages)
	return out
}

// Snapshot returns a copy of the full state for serialization.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Connections: make(map[string]domain.ConnectionState, len(s.connections)),
		Messages:    make([]domain.Event, len(s.messages)),
		Typing:      make(map[string]TypingStatus, len(s.typing)),
	}
	for k, v := range s.connections {
		snap.Connections[k] = v
	}
	copy(snap.Messages, s.messages)
	for k, v := range s.typing {
		snap.Typing[k] = v
	}
	if s.latest != nil {
		evt := *s.latest
		snap.Latest = &evt
	}
	return snap
}
