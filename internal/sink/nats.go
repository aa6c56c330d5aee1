// Package sink contains optional downstream publishers for normalized events.
package sink

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"sigbridge/internal/domain"
)

// natsEnvelope wraps a normalized event with server-side provenance before
// it goes out on the wire.
type natsEnvelope struct {
	ID              string        `json:"id"`
	Server          string        `json:"server"`
	TimestampServer int64         `json:"timestamp"`
	Event           *domain.Event `json:"event"`
}

// natsStatus is the payload published on the status subject.
type natsStatus struct {
	Server    string `json:"server"`
	Account   string `json:"account"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

// Nats publishes normalized events to a NATS subject. Connection state
// changes go to "<subject>.status". It implements domain.EventSink.
type Nats struct {
	conn    *nats.Conn
	subject string
	host    string
	logger  *slog.Logger
}

// NewNats connects to the NATS server and returns a publishing sink.
func NewNats(url, subject string, logger *slog.Logger) (*Nats, error) {
	nc, err := nats.Connect(url,
		nats.Name("sigbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	host, _ := os.Hostname()
	logger.Info("nats sink connected", "url", url, "subject", subject)
	return &Nats{conn: nc, subject: subject, host: host, logger: logger}, nil
}

// OnEvent implements domain.EventSink.
func (n *Nats) OnEvent(evt domain.Event) {
	payload := natsEnvelope{
		ID:              evt.ID,
		Server:          n.host,
		TimestampServer: time.Now().UnixMilli(),
		Event:           &evt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("nats sink marshal", "error", err)
		return
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Error("nats sink publish", "subject", n.subject, "error", err)
	}
}

// OnStatus implements domain.EventSink.
func (n *Nats) OnStatus(change domain.StatusChange) {
	data, err := json.Marshal(natsStatus{
		Server:    n.host,
		Account:   change.Account,
		State:     string(change.State),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		n.logger.Error("nats sink marshal status", "error", err)
		return
	}
	if err := n.conn.Publish(n.subject+".status", data); err != nil {
		n.logger.Error("nats sink publish status", "error", err)
	}
}

// Close flushes pending publishes and drops the connection.
func (n *Nats) Close() {
	if err := n.conn.Flush(); err != nil {
		n.logger.Warn("nats sink flush", "error", err)
	}
	n.conn.Close()
}
