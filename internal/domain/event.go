package domain

// EventKind tags the variant of a normalized event.
type EventKind string

const (
	EventText       EventKind = "text"
	EventAttachment EventKind = "attachment"
	EventTyping     EventKind = "typing"
	EventIgnored    EventKind = "ignored"
)

// IgnoreReason explains why a frame produced no content event.
type IgnoreReason string

const (
	IgnoreDecodeError   IgnoreReason = "decode_error"
	IgnoreEmptyEnvelope IgnoreReason = "empty_envelope"
	IgnoreReceipt       IgnoreReason = "receipt"
	IgnoreUnrecognized  IgnoreReason = "unrecognized"
)

// TypingAction is the normalized typing indicator state.
type TypingAction string

const (
	TypingStarted TypingAction = "started"
	TypingStopped TypingAction = "stopped"
	TypingUnknown TypingAction = "unknown"
)

// NoContentBody is the sentinel body for data messages that carry neither
// text nor attachments. The event is still forwarded.
const NoContentBody = "No content"

// AttachmentRef describes one attachment of a message. ResolvedURL is empty
// when the binary could not be retrieved; the metadata is still meaningful.
type AttachmentRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ResolvedURL string `json:"resolved_url,omitempty"`
}

// GroupMetadata is the lazily fetched detail record for a group chat.
type GroupMetadata struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Members         []string `json:"members,omitempty"`
	Admins          []string `json:"admins,omitempty"`
	Blocked         bool     `json:"blocked,omitempty"`
	PendingInvites  []string `json:"pending_invites,omitempty"`
	PendingRequests []string `json:"pending_requests,omitempty"`
	InviteLink      string   `json:"invite_link,omitempty"`
}

// Event is the classifier's output: exactly one inbound frame maps to at
// most one Event. Fields are populated according to Kind.
type Event struct {
	ID           string         `json:"id"`
	Kind         EventKind      `json:"kind"`
	Account      string         `json:"account,omitempty"`
	Source       string         `json:"source,omitempty"`
	TimestampISO string         `json:"timestamp,omitempty"` // empty means absent
	Body         string         `json:"body,omitempty"`
	Attachments  []AttachmentRef `json:"attachments,omitempty"`
	IsGroup      bool           `json:"is_group,omitempty"`
	GroupID      string         `json:"group_id,omitempty"`
	Group        *GroupMetadata `json:"group,omitempty"`
	Typing       TypingAction   `json:"typing_action,omitempty"`
	Reason       IgnoreReason   `json:"ignore_reason,omitempty"`
}

// IsContent reports whether the event should be surfaced to consumers as a
// message (typing and ignored events are not message content).
func (e Event) IsContent() bool {
	return e.Kind == EventText || e.Kind == EventAttachment
}
