package inventory

import (
	"context"
	"errors"
	"log"
	"time"
)

// Reaper deletes hosts whose culled timestamp has passed and announces each
// deletion. Runs are idempotent: a second invocation with no new reports
// finds nothing left to delete.
type Reaper struct {
	store    Storage
	producer EventProducer
	logger   *log.Logger
}

// NewReaper wires the reaper to storage and the shared event producer.
func NewReaper(store Storage, producer EventProducer, logger *log.Logger) (*Reaper, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if producer == nil {
		return nil, errors.New("event producer is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Reaper{store: store, producer: producer, logger: logger}, nil
}

// ReaperResult is the accounting for one run.
type ReaperResult struct {
	Deleted     int
	AlreadyGone int
	Failed      int
}

// Run deletes every culled host, one deletion per host so no single
// transaction spans the batch. A host that disappeared between selection and
// delete is logged and counted separately; a failed deletion is logged and
// the run continues with the remaining hosts.
func (r *Reaper) Run(ctx context.Context, now time.Time) (ReaperResult, error) {
	var result ReaperResult

	hosts, err := r.store.CulledBefore(ctx, now)
	if err != nil {
		reaperFailCount.Inc()
		return result, err
	}

	for _, host := range hosts {
		removed, err := r.store.Delete(ctx, host.ID)
		if err != nil {
			result.Failed++
			reaperFailCount.Inc()
			r.logger.Printf("ERROR reaper failed to delete host %s: %v", host.ID, err)
			continue
		}
		if !removed {
			result.AlreadyGone++
			r.logger.Printf("INFO host %s already deleted, delete event not emitted", host.ID)
			continue
		}

		result.Deleted++
		deletedHostCount.Inc()
		r.logger.Printf("INFO reaper deleted host %s", host.ID)

		event := buildEvent(EventDeleted, host, nil, UnknownRequestID)
		if err := r.producer.Publish(event, host.ID.String()); err != nil {
			r.logger.Printf("ERROR deleted event for host %s not published: %v", host.ID, err)
		}
	}

	r.logger.Printf("INFO reaper run finished: %d deleted, %d already gone, %d failed",
		result.Deleted, result.AlreadyGone, result.Failed)
	return result, nil
}
