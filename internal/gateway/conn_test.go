package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sigbridge/internal/bus"
	"sigbridge/internal/domain"
)

func TestReceiveURL(t *testing.T) {
	cases := []struct {
		base  string
		phone string
		want  string
	}{
		{"http://localhost:8080", "+1555", "ws://localhost:8080/v1/receive/+1555"},
		{"https://signal.example.com", "+1555", "wss://signal.example.com/v1/receive/+1555"},
		{"http://localhost:8080/", "+1555", "ws://localhost:8080/v1/receive/+1555"},
		{"https://signal.example.com///", "+49170", "wss://signal.example.com/v1/receive/+49170"},
	}
	for _, tc := range cases {
		if got := ReceiveURL(tc.base, tc.phone); got != tc.want {
			t.Errorf("ReceiveURL(%q, %q) = %q, want %q", tc.base, tc.phone, got, tc.want)
		}
	}
}

func TestNextDelay_BackoffSequence(t *testing.T) {
	base := 5 * time.Second
	max := 300 * time.Second

	want := []time.Duration{
		10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 160 * time.Second, 300 * time.Second, 300 * time.Second,
	}

	d := base
	for i, w := range want {
		d = nextDelay(d, max)
		if d != w {
			t.Errorf("step %d: got %v, want %v", i, d, w)
		}
	}
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startGatewayStub runs a WebSocket server that sends the given frames to
// every client that connects, then keeps the connection open.
func startGatewayStub(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, srv *httptest.Server, b domain.EventBus) *Manager {
	t.Helper()
	return NewManager(ConnConfig{
		Account:           "test",
		APIURL:            srv.URL,
		PhoneNumber:       "+15551234567",
		ReconnectInterval: 50 * time.Millisecond,
		MaxReconnectDelay: 200 * time.Millisecond,
		Logger:            testLogger(),
	}, newTestClassifier(nil, nil), b)
}

func waitForEvent(t *testing.T, items <-chan domain.BusItem, timeout time.Duration) domain.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case item := <-items:
			if item.Event != nil {
				return *item.Event
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func waitForState(t *testing.T, items <-chan domain.BusItem, want domain.ConnectionState, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case item := <-items:
			if item.Status != nil && item.Status.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestManager_ReceivesAndClassifiesFrames(t *testing.T) {
	srv := startGatewayStub(t, []string{
		`{"envelope":{"source":"+15551234567","timestamp":1700000000000,"dataMessage":{"message":"hello"}}}`,
	})

	b := bus.New(10, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	defer m.Stop()

	evt := waitForEvent(t, b.Subscribe(), 3*time.Second)
	if evt.Kind != domain.EventText || evt.Body != "hello" {
		t.Errorf("got %+v", evt)
	}
	if evt.Account != "test" {
		t.Errorf("account not stamped: %q", evt.Account)
	}
}

func TestManager_EmitsConnectedStatus(t *testing.T) {
	srv := startGatewayStub(t, nil)

	b := bus.New(10, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	defer m.Stop()

	waitForState(t, b.Subscribe(), domain.StateConnected, 3*time.Second)
}

func TestManager_MalformedFrameDoesNotKillLoop(t *testing.T) {
	srv := startGatewayStub(t, []string{
		`this is not json`,
		`{"envelope":{"source":"+1555","timestamp":1700000000000,"dataMessage":{"message":"still alive"}}}`,
	})

	b := bus.New(10, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	defer m.Stop()

	evt := waitForEvent(t, b.Subscribe(), 3*time.Second)
	if evt.Body != "still alive" {
		t.Errorf("got %+v", evt)
	}
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	var connects int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connects++
		if connects == 1 {
			conn.Close() // abrupt close, client should reconnect
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"envelope":{"source":"+1555","timestamp":1700000000000,"dataMessage":{"message":"after reconnect"}}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := bus.New(10, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	defer m.Stop()

	evt := waitForEvent(t, b.Subscribe(), 5*time.Second)
	if evt.Body != "after reconnect" {
		t.Errorf("got %+v", evt)
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	srv := startGatewayStub(t, nil)

	b := bus.New(100, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	waitForState(t, b.Subscribe(), domain.StateConnected, 3*time.Second)

	m.Stop()
	m.Stop() // second call must not block or panic
}

func TestManager_StartIdempotent(t *testing.T) {
	srv := startGatewayStub(t, nil)

	b := bus.New(100, testLogger())
	m := newTestManager(t, srv, b)

	m.Start()
	m.Start() // no-op with a warning
	defer m.Stop()

	waitForState(t, b.Subscribe(), domain.StateConnected, 3*time.Second)
}

func TestManager_StopWithoutStart(t *testing.T) {
	b := bus.New(10, testLogger())
	m := NewManager(ConnConfig{
		Account:     "test",
		APIURL:      "http://localhost:1",
		PhoneNumber: "+1555",
		Logger:      testLogger(),
	}, newTestClassifier(nil, nil), b)

	m.Stop() // must be a no-op
}

func TestManager_StopPreventsReconnect(t *testing.T) {
	// Server that refuses connections: manager sits in the backoff path.
	b := bus.New(100, testLogger())
	m := NewManager(ConnConfig{
		Account:           "test",
		APIURL:            "http://127.0.0.1:1", // nothing listens here
		PhoneNumber:       "+1555",
		ReconnectInterval: 50 * time.Millisecond,
		MaxReconnectDelay: 100 * time.Millisecond,
		Logger:            testLogger(),
	}, newTestClassifier(nil, nil), b)

	m.Start()
	time.Sleep(120 * time.Millisecond)
	m.Stop()

	waitForState(t, b.Subscribe(), domain.StateStopped, 3*time.Second)
}
