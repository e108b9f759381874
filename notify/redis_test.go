package notify

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Requires a live Redis; set CONDUCTOR_REDIS_ADDR (e.g. localhost:6379)
// to run.
func TestBridgeFansOutAcrossInstances(t *testing.T) {
	addr := os.Getenv("CONDUCTOR_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONDUCTOR_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := fmt.Sprintf("conductor:test:%d", time.Now().UnixNano())

	brokerA := NewBroker(testLogger())
	brokerB := NewBroker(testLogger())

	bridgeA := NewBridge(client, brokerA, "instance-a", testLogger(), WithRedisChannel(channel))
	bridgeB := NewBridge(client, brokerB, "instance-b", testLogger(), WithRedisChannel(channel))
	if err := bridgeA.Start(ctx); err != nil {
		t.Fatalf("start bridge A: %v", err)
	}
	t.Cleanup(bridgeA.Stop)
	if err := bridgeB.Start(ctx); err != nil {
		t.Fatalf("start bridge B: %v", err)
	}
	t.Cleanup(bridgeB.Stop)

	remote := brokerB.Subscribe("remote-observer", TopicFirehose)
	local := brokerA.Subscribe("local-observer", TopicFirehose)

	brokerA.Publish(&Event{
		Type:        EventExecutionStarted,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: "ws_1",
	})

	select {
	case evt := <-remote.C():
		if evt.Type != EventExecutionStarted || evt.Origin != "instance-a" {
			t.Fatalf("remote event = type %q origin %q", evt.Type, evt.Origin)
		}
	case <-ctx.Done():
		t.Fatal("remote broker never received the bridged event")
	}

	// The origin tag must suppress the echo: broker A sees its own local
	// publish exactly once, never a second copy round-tripped via Redis.
	var seen int
	deadline := time.After(300 * time.Millisecond)
drain:
	for {
		select {
		case <-local.C():
			seen++
		case <-deadline:
			break drain
		}
	}
	if seen != 1 {
		t.Fatalf("local broker saw %d copies, want 1", seen)
	}
}
