package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// collector accumulates delivered messages for assertions.
type collector struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (c *collector) handle(_ context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestChannelBus(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishDeliversToSubscriber", func(t *testing.T) {
		b := NewChannelBus(16)
		defer b.Close()

		c := &collector{}
		sub, err := b.Subscribe(ctx, "test.topic", c.handle)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		if sub.Topic() != "test.topic" {
			t.Errorf("expected topic %q, got %q", "test.topic", sub.Topic())
		}

		if err := b.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitFor(t, func() bool { return c.count() == 1 })
		c.mu.Lock()
		msg := c.msgs[0]
		c.mu.Unlock()
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload %q, got %q", "hello", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected a message id")
		}
		if msg.Topic != "test.topic" {
			t.Errorf("expected topic on envelope, got %q", msg.Topic)
		}
	})

	t.Run("TopicsAreIsolated", func(t *testing.T) {
		b := NewChannelBus(16)
		defer b.Close()

		c := &collector{}
		if _, err := b.Subscribe(ctx, "topic.a", c.handle); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := b.Publish(ctx, "topic.b", []byte("elsewhere")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if err := b.Publish(ctx, "topic.a", []byte("here")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitFor(t, func() bool { return c.count() == 1 })
		c.mu.Lock()
		payload := string(c.msgs[0].Payload)
		c.mu.Unlock()
		if payload != "here" {
			t.Errorf("received a message from the wrong topic: %q", payload)
		}
	})

	t.Run("MultipleSubscribersEachReceive", func(t *testing.T) {
		b := NewChannelBus(16)
		defer b.Close()

		first := &collector{}
		second := &collector{}
		if _, err := b.Subscribe(ctx, "fanout", first.handle); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		if _, err := b.Subscribe(ctx, "fanout", second.handle); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := b.Publish(ctx, "fanout", []byte("x")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitFor(t, func() bool { return first.count() == 1 && second.count() == 1 })
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		b := NewChannelBus(16)
		defer b.Close()

		c := &collector{}
		sub, err := b.Subscribe(ctx, "stop", c.handle)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}

		if err := b.Publish(ctx, "stop", []byte("dropped")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)
		if c.count() != 0 {
			t.Errorf("expected no deliveries after unsubscribe, got %d", c.count())
		}
	})

	t.Run("ClosedBusRejectsOperations", func(t *testing.T) {
		b := NewChannelBus(16)
		if err := b.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if err := b.Publish(ctx, "t", []byte("x")); err == nil {
			t.Error("expected Publish on a closed bus to fail")
		}
		if _, err := b.Subscribe(ctx, "t", func(context.Context, *domain.Message) error { return nil }); err == nil {
			t.Error("expected Subscribe on a closed bus to fail")
		}
		if err := b.Ping(ctx); err == nil {
			t.Error("expected Ping on a closed bus to fail")
		}
		// Close is idempotent.
		if err := b.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		b := NewChannelBus(16)
		defer b.Close()
		if err := b.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 8})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected an error for an unsupported bus type")
		}
	})
}
