package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Wire types for the gateway's inbound JSON contract. Shapes that deviate
// from this contract must degrade to an ignored event, never crash the
// decoder, so scalar fields with unreliable types use tolerant decoding.

type wireFrame struct {
	Envelope *wireEnvelope `json:"envelope"`
	Account  string        `json:"account"`
}

type wireEnvelope struct {
	Source         string          `json:"source"`
	SourceName     string          `json:"sourceName"`
	Timestamp      looseNumber     `json:"timestamp"`
	DataMessage    *wireData       `json:"dataMessage"`
	TypingMessage  *wireTyping     `json:"typingMessage"`
	ReceiptMessage json.RawMessage `json:"receiptMessage"`
}

type wireData struct {
	Message     string           `json:"message"`
	Attachments []wireAttachment `json:"attachments"`
	GroupInfo   *wireGroupInfo   `json:"groupInfo"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type wireTyping struct {
	Action string `json:"action"`
}

type wireGroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
}

// isEmpty reports whether the envelope carries nothing worth classifying.
func (e *wireEnvelope) isEmpty() bool {
	return e.Source == "" && e.DataMessage == nil && e.TypingMessage == nil &&
		len(e.ReceiptMessage) == 0 && e.Timestamp == ""
}

// hasReceipt reports whether a receipt indicator is present. A JSON null is
// not a receipt.
func (e *wireEnvelope) hasReceipt() bool {
	return len(e.ReceiptMessage) > 0 && !bytes.Equal(e.ReceiptMessage, []byte("null"))
}

// looseNumber is an epoch-millisecond field that tolerates strings, nulls,
// and garbage without failing the whole envelope decode. Empty means absent.
type looseNumber string

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*n = looseNumber(s)
	return nil
}
