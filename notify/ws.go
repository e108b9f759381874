package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Gateway exposes the broker over WebSocket. Each connection gets its
// own subscriber; clients drive topic membership and flow control with
// JSON control frames:
//
//	{"action": "subscribe", "topics": ["workspace:ws_123"]}
//	{"action": "unsubscribe", "topics": ["workspace:ws_123"]}
//	{"action": "credit", "credits": 500}
//
// Events are pushed to the client as JSON-encoded [Event] frames. A
// client that stops reading exhausts its credits and silently misses
// events until it grants more; nothing is buffered server-side beyond
// the subscriber channel.
type Gateway struct {
	broker *Broker
	logger *slog.Logger

	connSeq atomic.Int64
}

// NewGateway creates a WebSocket gateway over the broker.
func NewGateway(broker *Broker, logger *slog.Logger) *Gateway {
	return &Gateway{broker: broker, logger: logger}
}

// controlFrame is the client → server message format.
type controlFrame struct {
	Action  string   `json:"action"`
	Topics  []string `json:"topics,omitempty"`
	Credits int64    `json:"credits,omitempty"`
}

// errorFrame is sent to the client when a control frame is rejected.
type errorFrame struct {
	Error string `json:"error"`
}

// ServeHTTP upgrades the request and serves the connection until the
// client disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.logger.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	subID := fmt.Sprintf("ws-%s-%d", r.RemoteAddr, g.connSeq.Add(1))
	sub := g.broker.Subscribe(subID)

	g.logger.Info("websocket client connected", slog.String("subscriber", subID))

	defer func() {
		g.broker.RemoveSubscriber(subID)
		conn.Close() //nolint:errcheck // connection teardown
		g.logger.Info("websocket client disconnected", slog.String("subscriber", subID))
	}()

	// Writer: forward broker events to the socket. Exits when the
	// subscriber channel closes (RemoveSubscriber in the deferred
	// cleanup above).
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for evt := range sub.C() {
			data, merr := json.Marshal(evt)
			if merr != nil {
				continue
			}
			if werr := wsutil.WriteServerText(conn, data); werr != nil {
				return
			}
		}
	}()

	// Reader: process control frames until the client goes away.
	for {
		data, rerr := wsutil.ReadClientText(conn)
		if rerr != nil {
			return
		}

		var frame controlFrame
		if uerr := json.Unmarshal(data, &frame); uerr != nil {
			g.writeError(conn, "invalid control frame")
			continue
		}
		if err := g.handleControl(subID, sub, frame); err != nil {
			g.writeError(conn, err.Error())
		}

		select {
		case <-writeDone:
			return
		default:
		}
	}
}

func (g *Gateway) handleControl(subID string, sub *Subscriber, frame controlFrame) error {
	switch frame.Action {
	case "subscribe":
		for _, topic := range frame.Topics {
			if err := ValidateTopic(topic); err != nil {
				return err
			}
		}
		g.broker.SubscribeTo(subID, frame.Topics...)
		return nil
	case "unsubscribe":
		g.broker.Unsubscribe(subID, frame.Topics...)
		return nil
	case "credit":
		if frame.Credits <= 0 {
			return fmt.Errorf("notify: credits must be positive")
		}
		sub.Grant(frame.Credits)
		return nil
	default:
		return fmt.Errorf("notify: unknown action %q", frame.Action)
	}
}

func (g *Gateway) writeError(conn net.Conn, msg string) {
	data, err := json.Marshal(errorFrame{Error: msg})
	if err != nil {
		return
	}
	//nolint:errcheck // best-effort error response before continuing
	wsutil.WriteServerText(conn, data)
}
