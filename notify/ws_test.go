package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func newTestGateway(t *testing.T) (*Broker, *httptest.Server) {
	t.Helper()
	broker := NewBroker(testLogger())
	srv := httptest.NewServer(NewGateway(broker, testLogger()))
	t.Cleanup(srv.Close)
	return broker, srv
}

func dialGateway(t *testing.T, srv *httptest.Server) *wsConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

type wsConn struct {
	t    *testing.T
	conn net.Conn
}

func (c *wsConn) send(frame string) {
	c.t.Helper()
	if err := wsutil.WriteClientText(c.conn, []byte(frame)); err != nil {
		c.t.Fatalf("write control frame: %v", err)
	}
}

func (c *wsConn) read(into any) {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		c.t.Fatalf("set deadline: %v", err)
	}
	data, err := wsutil.ReadServerText(c.conn)
	if err != nil {
		c.t.Fatalf("read server frame: %v", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		c.t.Fatalf("unmarshal %q: %v", data, err)
	}
}

func TestGatewayDeliversWorkspaceEvents(t *testing.T) {
	broker, srv := newTestGateway(t)
	client := dialGateway(t, srv)

	client.send(`{"action": "subscribe", "topics": ["workspace:ws_1"]}`)

	// The subscribe frame is handled asynchronously to this goroutine, so
	// keep publishing until the membership takes effect and a frame lands.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				broker.Publish(&Event{
					Type:        EventExecutionCompleted,
					Timestamp:   time.Now().UTC(),
					WorkspaceID: "ws_1",
				})
			}
		}
	}()

	var evt Event
	client.read(&evt)
	if evt.Type != EventExecutionCompleted {
		t.Fatalf("event type = %q, want %q", evt.Type, EventExecutionCompleted)
	}
	if evt.WorkspaceID != "ws_1" {
		t.Fatalf("workspace = %q, want ws_1", evt.WorkspaceID)
	}
}

func TestGatewayRejectsBadControlFrames(t *testing.T) {
	_, srv := newTestGateway(t)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"unknown action", `{"action": "bogus"}`, "unknown action"},
		{"invalid topic", `{"action": "subscribe", "topics": ["nonsense"]}`, "invalid topic"},
		{"non-positive credits", `{"action": "credit", "credits": 0}`, "credits must be positive"},
		{"malformed json", `{nope`, "invalid control frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := dialGateway(t, srv)
			client.send(tt.frame)

			var ef errorFrame
			client.read(&ef)
			if !strings.Contains(ef.Error, tt.want) {
				t.Fatalf("error = %q, want substring %q", ef.Error, tt.want)
			}
		})
	}
}

func TestGatewayCreditGrant(t *testing.T) {
	broker, srv := newTestGateway(t)
	client := dialGateway(t, srv)

	client.send(`{"action": "subscribe", "topics": ["` + TopicFirehose + `"]}`)
	client.send(`{"action": "credit", "credits": 500}`)

	// A valid credit grant produces no response frame; the next frame the
	// client sees must be an event, not an error.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				broker.Publish(&Event{Type: EventStepStarted, Timestamp: time.Now().UTC()})
			}
		}
	}()

	var evt Event
	client.read(&evt)
	if evt.Type != EventStepStarted {
		t.Fatalf("event type = %q, want %q", evt.Type, EventStepStarted)
	}
}
