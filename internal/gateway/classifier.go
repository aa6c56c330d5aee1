package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sigbridge/internal/domain"
	"sigbridge/internal/metrics"
	"sigbridge/internal/timeconv"
)

// Classifier turns one raw gateway frame into a normalized event. It never
// returns an error and never panics: malformed input degrades to an ignored
// event. Group metadata and attachment binaries are resolved through
// injected fetchers with their own timeout; fetch failures degrade the event
// instead of failing it.
type Classifier struct {
	groups       domain.GroupFetcher
	attachments  domain.AttachmentFetcher
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// ClassifierConfig configures a Classifier. Groups and Attachments may be
// nil, in which case enrichment is skipped.
type ClassifierConfig struct {
	Groups       domain.GroupFetcher
	Attachments  domain.AttachmentFetcher
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Classifier{
		groups:       cfg.Groups,
		attachments:  cfg.Attachments,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}
}

// Classify parses a raw frame and produces exactly one normalized event.
// Precedence when multiple indicators co-occur: receipt, then typing, then
// data; anything else is unrecognized.
func (c *Classifier) Classify(ctx context.Context, raw []byte) domain.Event {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Debug("frame decode failed", "err", err, "raw", string(raw))
		metrics.DecodeErrors.Inc()
		return ignored(domain.IgnoreDecodeError)
	}

	env := frame.Envelope
	if env == nil || env.isEmpty() {
		return ignored(domain.IgnoreEmptyEnvelope)
	}

	if env.hasReceipt() {
		// Receipts carry no user-facing information.
		return ignored(domain.IgnoreReceipt)
	}

	ts, _ := timeconv.ISOFromMillis(json.Number(env.Timestamp))

	if env.TypingMessage != nil {
		return domain.Event{
			ID:           uuid.NewString(),
			Kind:         domain.EventTyping,
			Account:      frame.Account,
			Source:       env.Source,
			TimestampISO: ts,
			Typing:       normalizeTypingAction(env.TypingMessage.Action),
		}
	}

	if env.DataMessage != nil {
		return c.classifyData(ctx, &frame, ts)
	}

	return ignored(domain.IgnoreUnrecognized)
}

func (c *Classifier) classifyData(ctx context.Context, frame *wireFrame, ts string) domain.Event {
	env := frame.Envelope
	dm := env.DataMessage

	evt := domain.Event{
		ID:           uuid.NewString(),
		Kind:         domain.EventText,
		Account:      frame.Account,
		Source:       env.Source,
		TimestampISO: ts,
		Body:         strings.TrimSpace(dm.Message),
	}

	if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
		evt.IsGroup = true
		evt.GroupID = dm.GroupInfo.GroupID
		evt.Group = c.resolveGroup(ctx, dm.GroupInfo.GroupID)
	}

	evt.Attachments = c.resolveAttachments(ctx, dm.Attachments)
	if len(evt.Attachments) > 0 {
		evt.Kind = domain.EventAttachment
	} else if evt.Body == "" {
		// A structural message with no text is still meaningful; forward it
		// with a sentinel body instead of dropping it.
		evt.Body = domain.NoContentBody
	}

	return evt
}

// resolveGroup fetches group metadata; failure or timeout yields absent
// metadata, never a failed classification.
func (c *Classifier) resolveGroup(ctx context.Context, groupID string) *domain.GroupMetadata {
	if c.groups == nil {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	meta, err := c.groups.GroupMetadata(fetchCtx, groupID)
	metrics.FetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("group metadata fetch failed", "group_id", groupID, "err", err)
		metrics.FetchFailures.Inc()
		return nil
	}
	return meta
}

// resolveAttachments resolves each attachment with a non-empty id. A failure
// for one attachment does not block the others; the failed ref keeps its
// metadata without a resolved URL.
func (c *Classifier) resolveAttachments(ctx context.Context, atts []wireAttachment) []domain.AttachmentRef {
	if len(atts) == 0 {
		return nil
	}
	refs := make([]domain.AttachmentRef, 0, len(atts))
	for _, att := range atts {
		if att.ID == "" {
			continue
		}
		filename := att.Filename
		if filename == "" {
			filename = fmt.Sprintf("attachment_%s", att.ID)
		}
		ref := domain.AttachmentRef{ID: att.ID, Filename: filename}

		if c.attachments != nil {
			fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
			start := time.Now()
			url, err := c.attachments.FetchAttachment(fetchCtx, att.ID, filename)
			metrics.FetchLatency.Observe(time.Since(start).Seconds())
			cancel()
			if err != nil {
				c.logger.Warn("attachment fetch failed", "attachment_id", att.ID, "err", err)
				metrics.FetchFailures.Inc()
			} else {
				ref.ResolvedURL = url
			}
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func normalizeTypingAction(action string) domain.TypingAction {
	switch action {
	case "STARTED":
		return domain.TypingStarted
	case "STOPPED":
		return domain.TypingStopped
	default:
		return domain.TypingUnknown
	}
}

func ignored(reason domain.IgnoreReason) domain.Event {
	metrics.IgnoredFrames.Inc()
	return domain.Event{
		ID:     uuid.NewString(),
		Kind:   domain.EventIgnored,
		Reason: reason,
	}
}
