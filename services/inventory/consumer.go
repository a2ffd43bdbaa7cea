package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscriber is the message-bus consumption collaborator. *bus.Bus satisfies
// it.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// profileUpdate is the wire form of one partial system-profile message.
type profileUpdate struct {
	ID            uuid.UUID      `json:"id"`
	RequestID     string         `json:"request_id"`
	SystemProfile map[string]any `json:"system_profile"`
}

// ProfileConsumer applies partial system-profile updates from the bus to
// stored hosts. Each message is processed independently: a bad message is
// logged, counted, and dropped, and never halts consumption of the ones
// behind it. Ordering across hosts is whatever the bus provides.
type ProfileConsumer struct {
	svc     *Service
	logger  *log.Logger
	subject string
	durable string

	subMu sync.Mutex
	sub   io.Closer

	applied uint64
	failed  uint64
}

// NewProfileConsumer builds the consumer around the service layer.
func NewProfileConsumer(svc *Service, subject, durable string, logger *log.Logger) (*ProfileConsumer, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if subject == "" {
		return nil, errors.New("subject is required")
	}
	if durable == "" {
		return nil, errors.New("durable name is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &ProfileConsumer{svc: svc, logger: logger, subject: subject, durable: durable}, nil
}

// Start subscribes and processes messages until ctx is cancelled.
func (c *ProfileConsumer) Start(ctx context.Context, subscriber Subscriber) error {
	if subscriber == nil {
		return errors.New("subscriber is required")
	}

	handler := func(msgCtx context.Context, data []byte) error {
		// Always ack: failures are dropped with accounting, not redelivered.
		if err := c.handleMessage(msgCtx, data); err != nil {
			atomic.AddUint64(&c.failed, 1)
			profileUpdateFailCount.Inc()
			c.logger.Printf("ERROR system-profile update dropped: %v", err)
		} else {
			atomic.AddUint64(&c.applied, 1)
		}
		return nil
	}

	sub, err := subscriber.Subscribe(ctx, c.subject, c.durable, handler)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	c.sub = sub
	c.subMu.Unlock()

	c.logger.Printf("INFO system-profile consumer started on %s", c.subject)
	return nil
}

// Close stops the underlying subscription if it was created.
func (c *ProfileConsumer) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	return err
}

func (c *ProfileConsumer) handleMessage(ctx context.Context, data []byte) error {
	var update profileUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return err
	}
	if update.ID == uuid.Nil {
		return errors.New("host id missing from update")
	}
	if update.SystemProfile == nil {
		update.SystemProfile = map[string]any{}
	}
	return c.svc.ApplySystemProfileUpdate(ctx, update.ID, update.SystemProfile)
}

// ConsumerMetrics holds consumption statistics.
type ConsumerMetrics struct {
	Applied uint64 `json:"applied"`
	Failed  uint64 `json:"failed"`
}

// Metrics returns a snapshot of the counters.
func (c *ProfileConsumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		Applied: atomic.LoadUint64(&c.applied),
		Failed:  atomic.LoadUint64(&c.failed),
	}
}
