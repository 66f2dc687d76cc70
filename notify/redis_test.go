package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testEvent() *Event {
	return &Event{
		ContractVersion: ContractVersion,
		EventType:       EventApplyComplete,
		BundleID:        "{BundleGuid}",
		RunID:           "run-001",
		Action:          "install",
		Outcome:         "success",
		Timestamp:       "2026-08-01T12:00:00Z",
	}
}

// asyncReceive starts a goroutine that reads one message from the
// subscriber and sends it to the returned channel. Must be called
// BEFORE Publish to avoid deadlocking miniredis's synchronous pub/sub
// delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{} // unreachable
	}
}

func TestRedisAdapter_PublishSuccess(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := NewRedisAdapter(RedisConfig{URL: "redis://" + mr.Addr(), Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	event := testEvent()
	if err := a.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)

	var received Event
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.RunID != "run-001" {
		t.Errorf("expected run-001, got %s", received.RunID)
	}
	if received.EventType != EventApplyComplete {
		t.Errorf("expected apply_complete, got %s", received.EventType)
	}
}

func TestRedisAdapter_DefaultChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := NewRedisAdapter(RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, a.config.Channel)
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}
}

func TestRedisAdapter_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	customChannel := "custom:notifications"
	a, err := NewRedisAdapter(RedisConfig{URL: "redis://" + mr.Addr(), Channel: customChannel})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(customChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, msg.Channel)
	}
}

func TestRedisAdapter_ExhaustsRetries(t *testing.T) {
	a, err := NewRedisAdapter(RedisConfig{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestRedisAdapter_ContextCanceled(t *testing.T) {
	a, err := NewRedisAdapter(RedisConfig{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNewRedisAdapter_RequiresURL(t *testing.T) {
	if _, err := NewRedisAdapter(RedisConfig{}); err == nil {
		t.Fatal("expected error for missing URL")
	}
}

func TestNopPublisher_IsNoOp(t *testing.T) {
	var p NopPublisher
	if err := p.Publish(context.Background(), testEvent()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
