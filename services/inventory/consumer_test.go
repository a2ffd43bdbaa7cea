package inventory

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
)

// fakeSubscriber hands the registered handler back to the test so messages can
// be injected directly.
type fakeSubscriber struct {
	handler func(ctx context.Context, data []byte) error
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (s *fakeSubscriber) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	s.handler = fn
	return nopCloser{}, nil
}

func startTestConsumer(t *testing.T, store *memStore) (*ProfileConsumer, *fakeSubscriber) {
	t.Helper()

	svc := newTestService(t, store, &captureProducer{})
	consumer, err := NewProfileConsumer(svc, "hosts.profile", "inventory-profile", discardLogger())
	if err != nil {
		t.Fatalf("NewProfileConsumer error = %v", err)
	}

	sub := &fakeSubscriber{}
	if err := consumer.Start(context.Background(), sub); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(func() { consumer.Close() })

	return consumer, sub
}

func profileMessage(t *testing.T, id uuid.UUID, profile map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":             id,
		"request_id":     "req-1",
		"system_profile": profile,
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return data
}

func TestConsumerAppliesProfileUpdate(t *testing.T) {
	store := newMemStore()
	host, err := store.Create(context.Background(), Host{
		ID:            uuid.New(),
		Account:       "acct-1",
		SystemProfile: map[string]any{"os_release": "8.4", "arch": "x86_64"},
	})
	if err != nil {
		t.Fatalf("seed host: %v", err)
	}

	consumer, sub := startTestConsumer(t, store)

	msg := profileMessage(t, host.ID, map[string]any{"os_release": "9.0", "cores": float64(8)})
	if err := sub.handler(context.Background(), msg); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got, err := store.Get(context.Background(), host.ID)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got.SystemProfile["os_release"] != "9.0" {
		t.Fatalf("os_release = %v, want 9.0", got.SystemProfile["os_release"])
	}
	if got.SystemProfile["arch"] != "x86_64" {
		t.Fatalf("untouched key lost: %v", got.SystemProfile)
	}
	if got.SystemProfile["cores"] != float64(8) {
		t.Fatalf("new key missing: %v", got.SystemProfile)
	}

	if m := consumer.Metrics(); m.Applied != 1 || m.Failed != 0 {
		t.Fatalf("metrics = %+v, want 1 applied", m)
	}
}

func TestConsumerDropsBadMessages(t *testing.T) {
	store := newMemStore()
	host, err := store.Create(context.Background(), Host{ID: uuid.New(), Account: "acct-1"})
	if err != nil {
		t.Fatalf("seed host: %v", err)
	}

	consumer, sub := startTestConsumer(t, store)
	ctx := context.Background()

	bad := [][]byte{
		[]byte("{not json"),
		profileMessage(t, uuid.Nil, map[string]any{"k": "v"}),
		profileMessage(t, uuid.New(), map[string]any{"k": "v"}),
	}
	for _, msg := range bad {
		// The handler must swallow the failure so the message is acked and
		// dropped instead of redelivered.
		if err := sub.handler(ctx, msg); err != nil {
			t.Fatalf("handler returned %v for a poison message", err)
		}
	}

	if err := sub.handler(ctx, profileMessage(t, host.ID, map[string]any{"k": "v"})); err != nil {
		t.Fatalf("handler error after poison messages = %v", err)
	}

	m := consumer.Metrics()
	if m.Failed != uint64(len(bad)) {
		t.Fatalf("failed = %d, want %d", m.Failed, len(bad))
	}
	if m.Applied != 1 {
		t.Fatalf("applied = %d, want 1", m.Applied)
	}

	got, err := store.Get(ctx, host.ID)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got.SystemProfile["k"] != "v" {
		t.Fatalf("valid update not applied: %v", got.SystemProfile)
	}
}
