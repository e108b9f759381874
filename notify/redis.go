package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the Redis pub/sub channel bridged by default.
const DefaultRedisChannel = "conductor:events"

// Bridge connects the in-process broker to a shared Redis pub/sub
// channel so that multiple engine instances present one notification
// plane. Local events are relayed to Redis; remote events arriving on
// the channel are fed into the local broker. Delivery remains
// best-effort end to end.
type Bridge struct {
	client redis.UniversalClient
	broker *Broker
	logger *slog.Logger

	// originID tags outgoing events; incoming events carrying the same
	// tag are dropped to prevent echo loops.
	originID string
	channel  string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithRedisChannel sets the pub/sub channel name.
func WithRedisChannel(channel string) BridgeOption {
	return func(b *Bridge) { b.channel = channel }
}

// NewBridge creates a Redis bridge for the broker. The caller owns the
// Redis client lifecycle. originID must be unique per engine instance.
func NewBridge(client redis.UniversalClient, broker *Broker, originID string, logger *slog.Logger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		client:   client,
		broker:   broker,
		logger:   logger,
		originID: originID,
		channel:  DefaultRedisChannel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the outbound relay and the inbound subscription loop.
// It returns once both are running.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("notify: redis bridge ping: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	// Outbound: every local event goes to the shared channel.
	sub := b.broker.Subscribe("redis-bridge:"+b.originID, TopicFirehose)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.relayOut(runCtx, sub)
	}()

	// Inbound: remote events come back into the local broker.
	pubsub := b.client.Subscribe(runCtx, b.channel)
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		return fmt.Errorf("notify: redis bridge subscribe %q: %w", b.channel, err)
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer pubsub.Close() //nolint:errcheck // teardown
		b.relayIn(runCtx, pubsub.Channel())
	}()

	b.logger.Info("redis bridge started",
		slog.String("channel", b.channel),
		slog.String("origin", b.originID),
	)
	return nil
}

// Stop shuts the bridge down and waits for both loops to exit.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.broker.RemoveSubscriber("redis-bridge:" + b.originID)
	b.wg.Wait()
}

func (b *Bridge) relayOut(ctx context.Context, sub *Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			// Events that arrived via the bridge already carry a
			// foreign origin; do not send them back out.
			if evt.Origin != "" && evt.Origin != b.originID {
				continue
			}
			out := *evt
			out.Origin = b.originID
			data, err := json.Marshal(&out)
			if err != nil {
				continue
			}
			if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
				b.logger.Warn("redis bridge publish failed",
					slog.String("error", err.Error()),
				)
			}
			sub.Grant(1)
		}
	}
}

func (b *Bridge) relayIn(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("redis bridge dropped malformed event",
					slog.String("error", err.Error()),
				)
				continue
			}
			if evt.Origin == b.originID {
				continue
			}
			b.broker.Publish(&evt)
		}
	}
}
