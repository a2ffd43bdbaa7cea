package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedHost(t *testing.T, store *memStore, account string, culled time.Time) Host {
	t.Helper()
	host := Host{
		ID:              uuid.New(),
		Account:         account,
		DisplayName:     "seed",
		CulledTimestamp: culled,
	}
	created, err := store.Create(context.Background(), host)
	if err != nil {
		t.Fatalf("seed host: %v", err)
	}
	return created
}

func TestReaperDeletesCulledHosts(t *testing.T) {
	store := newMemStore()
	producer := &captureProducer{}
	reaper, err := NewReaper(store, producer, discardLogger())
	if err != nil {
		t.Fatalf("NewReaper error = %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	culled := []Host{
		seedHost(t, store, "acct-1", now.Add(-time.Hour)),
		seedHost(t, store, "acct-1", now.Add(-time.Minute)),
		seedHost(t, store, "acct-2", now),
	}
	fresh := seedHost(t, store, "acct-1", now.Add(time.Hour))

	result, err := reaper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if result.Deleted != 3 || result.AlreadyGone != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 3 deleted", result)
	}

	if _, err := store.Get(context.Background(), fresh.ID); err != nil {
		t.Fatalf("fresh host was reaped: %v", err)
	}
	for _, h := range culled {
		var notFound *NotFoundError
		if _, err := store.Get(context.Background(), h.ID); !errors.As(err, &notFound) {
			t.Fatalf("host %s survived the reaper", h.ID)
		}
	}

	events := producer.published()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	for _, e := range events {
		if e.Type != EventDeleted {
			t.Fatalf("event type = %s, want %s", e.Type, EventDeleted)
		}
		if e.Metadata.RequestID != UnknownRequestID {
			t.Fatalf("reaper event request id = %q, want %q", e.Metadata.RequestID, UnknownRequestID)
		}
	}
}

func TestReaperSecondRunFindsNothing(t *testing.T) {
	store := newMemStore()
	producer := &captureProducer{}
	reaper, err := NewReaper(store, producer, discardLogger())
	if err != nil {
		t.Fatalf("NewReaper error = %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedHost(t, store, "acct-1", now.Add(-time.Hour))

	if _, err := reaper.Run(context.Background(), now); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	result, err := reaper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if result != (ReaperResult{}) {
		t.Fatalf("second run result = %+v, want zero", result)
	}
	if len(producer.published()) != 1 {
		t.Fatalf("second run published extra events")
	}
}

func TestReaperContinuesPastFailures(t *testing.T) {
	store := newMemStore()
	producer := &captureProducer{}
	reaper, err := NewReaper(store, producer, discardLogger())
	if err != nil {
		t.Fatalf("NewReaper error = %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	broken := seedHost(t, store, "acct-1", now.Add(-time.Hour))
	ok := seedHost(t, store, "acct-1", now.Add(-time.Hour))
	store.failDelete[broken.ID] = errors.New("deadlock detected")

	result, err := reaper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if result.Deleted != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 deleted 1 failed", result)
	}

	var notFound *NotFoundError
	if _, err := store.Get(context.Background(), ok.ID); !errors.As(err, &notFound) {
		t.Fatalf("healthy host %s not deleted", ok.ID)
	}

	events := producer.published()
	if len(events) != 1 || events[0].Host.ID != ok.ID {
		t.Fatalf("events = %v, want one deletion for %s", events, ok.ID)
	}
}

func TestReaperSkipsAlreadyGoneHosts(t *testing.T) {
	store := newMemStore()
	producer := &captureProducer{}
	reaper, err := NewReaper(store, producer, discardLogger())
	if err != nil {
		t.Fatalf("NewReaper error = %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.phantoms = []Host{{ID: uuid.New(), CulledTimestamp: now.Add(-time.Hour)}}

	result, err := reaper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if result.AlreadyGone != 1 || result.Deleted != 0 {
		t.Fatalf("result = %+v, want 1 already gone", result)
	}
	if len(producer.published()) != 0 {
		t.Fatal("no event must be emitted for an already deleted host")
	}
}
