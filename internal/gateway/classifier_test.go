package gateway

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"sigbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type stubGroupFetcher struct {
	meta *domain.GroupMetadata
	err  error
}

func (s *stubGroupFetcher) GroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error) {
	return s.meta, s.err
}

type stubAttachmentFetcher struct {
	urls map[string]string
	err  error
}

func (s *stubAttachmentFetcher) FetchAttachment(ctx context.Context, id, filename string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.urls[id], nil
}

func newTestClassifier(groups domain.GroupFetcher, atts domain.AttachmentFetcher) *Classifier {
	return NewClassifier(ClassifierConfig{
		Groups:      groups,
		Attachments: atts,
		Logger:      testLogger(),
	})
}

func TestClassify_MalformedJSON(t *testing.T) {
	c := newTestClassifier(nil, nil)
	cases := []string{
		"",
		"not json",
		"{",
		`{"envelope":`,
		`[1,2,3`,
	}
	for _, raw := range cases {
		evt := c.Classify(context.Background(), []byte(raw))
		if evt.Kind != domain.EventIgnored || evt.Reason != domain.IgnoreDecodeError {
			t.Errorf("input %q: got kind=%s reason=%s", raw, evt.Kind, evt.Reason)
		}
	}
}

func TestClassify_EmptyEnvelope(t *testing.T) {
	c := newTestClassifier(nil, nil)
	for _, raw := range []string{`{}`, `{"envelope":{}}`, `{"envelope":null}`} {
		evt := c.Classify(context.Background(), []byte(raw))
		if evt.Kind != domain.EventIgnored || evt.Reason != domain.IgnoreEmptyEnvelope {
			t.Errorf("input %q: got kind=%s reason=%s", raw, evt.Kind, evt.Reason)
		}
	}
}

func TestClassify_ReceiptAlwaysIgnored(t *testing.T) {
	c := newTestClassifier(nil, nil)
	// Receipt takes precedence even when other indicators are present.
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"receiptMessage":{"when":1700000000000,"isDelivery":true},
		"typingMessage":{"action":"STARTED"},
		"dataMessage":{"message":"hi"}}}`
	evt := c.Classify(context.Background(), []byte(raw))
	if evt.Kind != domain.EventIgnored || evt.Reason != domain.IgnoreReceipt {
		t.Errorf("got kind=%s reason=%s", evt.Kind, evt.Reason)
	}
}

func TestClassify_TypingActions(t *testing.T) {
	c := newTestClassifier(nil, nil)
	cases := []struct {
		action string
		want   domain.TypingAction
	}{
		{`"STARTED"`, domain.TypingStarted},
		{`"STOPPED"`, domain.TypingStopped},
		{`"FOO"`, domain.TypingUnknown},
		{`""`, domain.TypingUnknown},
		{`null`, domain.TypingUnknown},
	}
	for _, tc := range cases {
		raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,"typingMessage":{"action":` + tc.action + `}}}`
		evt := c.Classify(context.Background(), []byte(raw))
		if evt.Kind != domain.EventTyping {
			t.Fatalf("action %s: got kind=%s", tc.action, evt.Kind)
		}
		if evt.Typing != tc.want {
			t.Errorf("action %s: got %s, want %s", tc.action, evt.Typing, tc.want)
		}
	}
}

func TestClassify_TypingTakesPrecedenceOverData(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"typingMessage":{"action":"STOPPED"},
		"dataMessage":{"message":"hi"}}}`
	evt := c.Classify(context.Background(), []byte(raw))
	if evt.Kind != domain.EventTyping {
		t.Errorf("got kind=%s", evt.Kind)
	}
}

func TestClassify_SimpleTextMessage(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+15551234567","timestamp":1700000000000,"dataMessage":{"message":"hello"}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventText {
		t.Fatalf("got kind=%s", evt.Kind)
	}
	if evt.Source != "+15551234567" {
		t.Errorf("source: %q", evt.Source)
	}
	if evt.Body != "hello" {
		t.Errorf("body: %q", evt.Body)
	}
	if evt.IsGroup {
		t.Error("expected individual message")
	}
	if evt.TimestampISO != "2023-11-14T22:13:20+00:00" {
		t.Errorf("timestamp: %q", evt.TimestampISO)
	}
	if evt.ID == "" {
		t.Error("expected event id")
	}
}

func TestClassify_EmptyBodyNoAttachments_SentinelBody(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,"dataMessage":{"message":"  "}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventText {
		t.Fatalf("got kind=%s, event must not be dropped", evt.Kind)
	}
	if evt.Body != domain.NoContentBody {
		t.Errorf("body: %q, want sentinel", evt.Body)
	}
}

func TestClassify_AttachmentFetchFailureDegrades(t *testing.T) {
	c := newTestClassifier(nil, &stubAttachmentFetcher{err: errors.New("fetch failed")})
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"dataMessage":{"message":"","attachments":[{"id":"att-1","filename":"pic.jpg"}]}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventAttachment {
		t.Fatalf("got kind=%s", evt.Kind)
	}
	if len(evt.Attachments) != 1 {
		t.Fatalf("got %d attachments", len(evt.Attachments))
	}
	ref := evt.Attachments[0]
	if ref.ID != "att-1" || ref.Filename != "pic.jpg" {
		t.Errorf("ref: %+v", ref)
	}
	if ref.ResolvedURL != "" {
		t.Errorf("expected absent resolved url, got %q", ref.ResolvedURL)
	}
}

func TestClassify_OneAttachmentFailureDoesNotBlockOthers(t *testing.T) {
	fetcher := &stubAttachmentFetcher{urls: map[string]string{
		"att-2": "http://host/local/att-2.jpg",
	}}
	c := newTestClassifier(nil, fetcher)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"dataMessage":{"attachments":[{"id":"att-1"},{"id":"att-2","filename":"b.jpg"}]}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if len(evt.Attachments) != 2 {
		t.Fatalf("got %d attachments", len(evt.Attachments))
	}
	if evt.Attachments[0].ResolvedURL != "" {
		t.Errorf("first attachment should be unresolved: %+v", evt.Attachments[0])
	}
	if evt.Attachments[0].Filename != "attachment_att-1" {
		t.Errorf("default filename: %q", evt.Attachments[0].Filename)
	}
	if evt.Attachments[1].ResolvedURL != "http://host/local/att-2.jpg" {
		t.Errorf("second attachment: %+v", evt.Attachments[1])
	}
}

func TestClassify_GroupMessage(t *testing.T) {
	groups := &stubGroupFetcher{meta: &domain.GroupMetadata{
		ID:      "group.abc",
		Name:    "Family",
		Members: []string{"+1555", "+1556"},
		Admins:  []string{"+1555"},
	}}
	c := newTestClassifier(groups, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"dataMessage":{"message":"hi all","groupInfo":{"groupId":"group.abc"}}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if !evt.IsGroup || evt.GroupID != "group.abc" {
		t.Fatalf("group flags: isGroup=%v groupID=%q", evt.IsGroup, evt.GroupID)
	}
	if evt.Group == nil || evt.Group.Name != "Family" {
		t.Errorf("group metadata: %+v", evt.Group)
	}
}

func TestClassify_GroupFetchFailureDegrades(t *testing.T) {
	c := newTestClassifier(&stubGroupFetcher{err: errors.New("timeout")}, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,
		"dataMessage":{"message":"hi","groupInfo":{"groupId":"group.abc"}}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventText {
		t.Fatalf("got kind=%s", evt.Kind)
	}
	if !evt.IsGroup || evt.GroupID != "group.abc" {
		t.Errorf("group id must survive a failed fetch: %+v", evt)
	}
	if evt.Group != nil {
		t.Errorf("expected absent metadata, got %+v", evt.Group)
	}
}

func TestClassify_NonNumericTimestamp(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":"garbage","dataMessage":{"message":"hi"}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventText {
		t.Fatalf("bad timestamp must not fail classification: kind=%s", evt.Kind)
	}
	if evt.TimestampISO != "" {
		t.Errorf("expected absent timestamp, got %q", evt.TimestampISO)
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000}}`
	evt := c.Classify(context.Background(), []byte(raw))
	if evt.Kind != domain.EventIgnored || evt.Reason != domain.IgnoreUnrecognized {
		t.Errorf("got kind=%s reason=%s", evt.Kind, evt.Reason)
	}
}

func TestClassify_TypingEventEndToEnd(t *testing.T) {
	c := newTestClassifier(nil, nil)
	raw := `{"envelope":{"source":"+1555","timestamp":1700000000000,"typingMessage":{"action":"STARTED"}}}`
	evt := c.Classify(context.Background(), []byte(raw))

	if evt.Kind != domain.EventTyping || evt.Typing != domain.TypingStarted {
		t.Fatalf("got kind=%s action=%s", evt.Kind, evt.Typing)
	}
	if evt.IsContent() {
		t.Error("typing events are not message content")
	}
}
