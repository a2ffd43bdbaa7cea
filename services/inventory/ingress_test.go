package inventory

import (
	"context"
	"encoding/json"
	"testing"
)

func startTestIngress(t *testing.T, store *memStore, producer EventProducer) (*IngressConsumer, *fakeSubscriber) {
	t.Helper()

	svc := newTestService(t, store, producer)
	consumer, err := NewIngressConsumer(svc, "hosts.ingress", "inventory-ingress", discardLogger())
	if err != nil {
		t.Fatalf("NewIngressConsumer error = %v", err)
	}

	sub := &fakeSubscriber{}
	if err := consumer.Start(context.Background(), sub); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(func() { consumer.Close() })

	return consumer, sub
}

func ingressPayload(t *testing.T, operation string, data map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"operation":         operation,
		"data":              data,
		"platform_metadata": map[string]any{"source": "bus"},
		"metadata":          map[string]any{"request_id": "req-mq-1"},
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return raw
}

func TestIngressCreatesAndMergesHosts(t *testing.T) {
	store := newMemStore()
	producer := &captureProducer{}
	consumer, sub := startTestIngress(t, store, producer)
	ctx := context.Background()

	report := ingressPayload(t, OperationAddHost, map[string]any{
		"account":      "acct-1",
		"fqdn":         "Web-1.Example.COM",
		"display_name": "web-1",
		"reporter":     "puptoo",
		"tags":         []map[string]any{{"namespace": "env", "key": "tier", "value": "web"}},
	})
	if err := sub.handler(ctx, report); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("store holds %d hosts, want 1", store.count())
	}

	events := producer.published()
	if len(events) != 1 || events[0].Type != EventCreated {
		t.Fatalf("events = %v, want one created", events)
	}
	if events[0].Metadata.RequestID != "req-mq-1" {
		t.Fatalf("event request id = %q", events[0].Metadata.RequestID)
	}
	if events[0].PlatformMetadata["source"] != "bus" {
		t.Fatalf("platform metadata = %v", events[0].PlatformMetadata)
	}
	if events[0].Host.DisplayName != "web-1" || events[0].Host.FQDN != "web-1.example.com" {
		t.Fatalf("host = %+v", events[0].Host)
	}

	if err := sub.handler(ctx, ingressPayload(t, OperationAddHost, map[string]any{
		"account":   "acct-1",
		"fqdn":      "web-1.example.com",
		"bios_uuid": "b53bbafe-2de4-4a3e-8ddf-6a41b8fb5a9a",
	})); err != nil {
		t.Fatalf("second report error = %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("second report created a new host: %d stored", store.count())
	}
	events = producer.published()
	if len(events) != 2 || events[1].Type != EventUpdated {
		t.Fatalf("second report events = %v, want updated", events)
	}

	if m := consumer.Metrics(); m.Accepted != 2 || m.Rejected != 0 {
		t.Fatalf("metrics = %+v, want 2 accepted", m)
	}
}

func TestIngressDropsBadMessages(t *testing.T) {
	store := newMemStore()
	consumer, sub := startTestIngress(t, store, &captureProducer{})
	ctx := context.Background()

	bad := [][]byte{
		[]byte("{not json"),
		ingressPayload(t, "remove_host", map[string]any{"account": "acct-1", "fqdn": "a.example.com"}),
		ingressPayload(t, OperationAddHost, map[string]any{"fqdn": "a.example.com"}),
		ingressPayload(t, OperationAddHost, map[string]any{"account": "acct-1"}),
	}
	for _, msg := range bad {
		// The handler must swallow the failure so the message is acked and
		// dropped instead of redelivered.
		if err := sub.handler(ctx, msg); err != nil {
			t.Fatalf("handler returned %v for a poison message", err)
		}
	}

	if store.count() != 0 {
		t.Fatalf("poison messages created %d hosts", store.count())
	}

	good := ingressPayload(t, OperationAddHost, map[string]any{
		"account": "acct-1",
		"fqdn":    "a.example.com",
	})
	if err := sub.handler(ctx, good); err != nil {
		t.Fatalf("handler error after poison messages = %v", err)
	}

	m := consumer.Metrics()
	if m.Rejected != uint64(len(bad)) {
		t.Fatalf("rejected = %d, want %d", m.Rejected, len(bad))
	}
	if m.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", m.Accepted)
	}
	if store.count() != 1 {
		t.Fatalf("valid report not applied: %d hosts", store.count())
	}
}

func TestIngressDropsAmbiguousReports(t *testing.T) {
	store := newMemStore()
	consumer, sub := startTestIngress(t, store, &captureProducer{})
	ctx := context.Background()

	seeds := []map[string]any{
		{"account": "acct-1", "insights_id": "a53bbafe-2de4-4a3e-8ddf-6a41b8fb5a9a"},
		{"account": "acct-1", "fqdn": "web-1.example.com"},
	}
	for _, seed := range seeds {
		if err := sub.handler(ctx, ingressPayload(t, OperationAddHost, seed)); err != nil {
			t.Fatalf("seed handler error = %v", err)
		}
	}

	conflict := ingressPayload(t, OperationAddHost, map[string]any{
		"account":     "acct-1",
		"insights_id": "a53bbafe-2de4-4a3e-8ddf-6a41b8fb5a9a",
		"fqdn":        "web-1.example.com",
	})
	if err := sub.handler(ctx, conflict); err != nil {
		t.Fatalf("handler returned %v for a conflicting report", err)
	}

	if store.count() != 2 {
		t.Fatalf("conflicting report changed the store: %d hosts", store.count())
	}
	if m := consumer.Metrics(); m.Accepted != 2 || m.Rejected != 1 {
		t.Fatalf("metrics = %+v, want 2 accepted 1 rejected", m)
	}
}
