package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sigbridge/internal/domain"
	"sigbridge/internal/metrics"
)

const (
	defaultReconnectInterval = 5 * time.Second
	defaultMaxReconnectDelay = 300 * time.Second
	dialTimeout              = 10 * time.Second
	stopJoinTimeout          = 10 * time.Second
)

// ConnConfig configures one gateway connection. Derived values are computed
// once at construction and never mutated.
type ConnConfig struct {
	Account           string // registry id, reported on status changes
	APIURL            string
	PhoneNumber       string
	ReconnectInterval time.Duration
	MaxReconnectDelay time.Duration
	Logger            *slog.Logger
}

// Manager owns one persistent WebSocket session to the gateway's receive
// endpoint. It reconnects with capped exponential backoff and dispatches
// every inbound frame, in arrival order, through the classifier to the bus.
// Transport errors never escape Start; they surface only as status changes.
type Manager struct {
	account    string
	wsURL      string
	baseDelay  time.Duration
	maxDelay   time.Duration
	classifier *Classifier
	bus        domain.EventBus
	logger     *slog.Logger
	dialer     *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewManager creates a connection manager. The WebSocket URL is derived from
// the HTTP base URL and the account's phone number.
func NewManager(cfg ConnConfig, classifier *Classifier, bus domain.EventBus) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	return &Manager{
		account:    cfg.Account,
		wsURL:      ReceiveURL(cfg.APIURL, cfg.PhoneNumber),
		baseDelay:  cfg.ReconnectInterval,
		maxDelay:   cfg.MaxReconnectDelay,
		classifier: classifier,
		bus:        bus,
		logger:     cfg.Logger,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

// URL returns the derived WebSocket receive URL.
func (m *Manager) URL() string { return m.wsURL }

// Start launches the connection loop on its own goroutine. Calling Start
// while the loop is already running is a no-op with a logged warning.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("connection loop already running", "account", m.account)
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("connecting to gateway", "account", m.account, "url", m.wsURL)
	go m.run(ctx)
}

// Stop signals the loop to exit, force-closes any live socket, and waits for
// the loop goroutine with a bounded join. Safe to call from any goroutine;
// calling it again after the loop has stopped is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Debug("connection loop not running", "account", m.account)
		return
	}
	m.running = false
	close(m.stopCh)
	m.cancel()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("socket close failed", "err", err)
		}
	}
	done := m.done
	m.mu.Unlock()

	m.setState(domain.StateStopping)

	select {
	case <-done:
		m.logger.Info("connection loop stopped", "account", m.account)
	case <-time.After(stopJoinTimeout):
		m.logger.Warn("connection loop did not exit within join timeout", "account", m.account)
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	delay := m.baseDelay
	for !m.stopping() {
		m.setState(domain.StateConnecting)
		conn, resp, err := m.dialer.Dial(m.wsURL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if m.stopping() {
				break
			}
			m.logger.Warn("gateway dial failed", "account", m.account, "err", err, "retry_in", delay)
			m.setState(domain.StateErrored)
			metrics.ReconnectsTotal.Inc()
			if !m.sleep(delay) {
				break
			}
			delay = nextDelay(delay, m.maxDelay)
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()

		delay = m.baseDelay
		m.setState(domain.StateConnected)
		metrics.ConnectionsUp.Inc()
		m.logger.Info("gateway connection established", "account", m.account)

		readErr := m.readLoop(ctx, conn)

		metrics.ConnectionsUp.Dec()
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()

		if m.stopping() {
			break
		}

		if isCleanClose(readErr) {
			m.logger.Warn("gateway connection closed", "account", m.account)
			m.setState(domain.StateDisconnected)
		} else {
			m.logger.Warn("gateway read failed", "account", m.account, "err", readErr)
			m.setState(domain.StateErrored)
		}
		metrics.ReconnectsTotal.Inc()
		m.logger.Warn("reconnecting", "account", m.account, "retry_in", delay)
		if !m.sleep(delay) {
			break
		}
		delay = nextDelay(delay, m.maxDelay)
	}

	m.setState(domain.StateStopped)
}

// readLoop blocks on the socket and dispatches each frame synchronously: the
// next frame is not read until the current event's handoff to the bus has
// completed or timed out. A decode failure is confined to its frame.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		metrics.FramesTotal.Inc()

		start := time.Now()
		evt := m.classifier.Classify(ctx, raw)
		metrics.ClassifyLatency.Observe(time.Since(start).Seconds())

		if evt.Kind == domain.EventIgnored {
			m.logger.Debug("frame ignored", "account", m.account, "reason", evt.Reason)
			continue
		}
		if evt.Account == "" {
			evt.Account = m.account
		}
		m.bus.Publish(evt)
		metrics.EventsPublished.Inc()
	}
}

func (m *Manager) setState(state domain.ConnectionState) {
	m.bus.PublishStatus(domain.StatusChange{Account: m.account, State: state})
}

func (m *Manager) stopping() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for the backoff delay; returns false if stop was requested.
func (m *Manager) sleep(d time.Duration) bool {
	select {
	case <-m.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// nextDelay doubles the backoff delay, clamped to max.
func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
