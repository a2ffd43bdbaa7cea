package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

// OperationAddHost is the only ingress operation currently understood.
const OperationAddHost = "add_host"

// ingressMessage is the wire form of one host report arriving over the bus.
// It carries the same fields as the HTTP report body, wrapped in an operation
// envelope with platform metadata and tracing alongside.
type ingressMessage struct {
	Operation        string            `json:"operation"`
	Data             ingressHostFields `json:"data"`
	PlatformMetadata map[string]any    `json:"platform_metadata"`
	Metadata         EventMetadata     `json:"metadata"`
}

type ingressHostFields struct {
	Account     string  `json:"account"`
	DisplayName *string `json:"display_name"`
	AnsibleHost *string `json:"ansible_host"`

	CanonicalFacts

	Facts    map[string]map[string]any `json:"facts"`
	Tags     []Tag                     `json:"tags"`
	Reporter string                    `json:"reporter"`
}

// IngressConsumer feeds host reports from the bus into the same add-or-merge
// flow the HTTP handler uses. The drop discipline matches the profile
// consumer: a malformed or rejected report is logged, counted, and acked, and
// never blocks the reports behind it.
type IngressConsumer struct {
	svc     *Service
	logger  *log.Logger
	subject string
	durable string

	subMu sync.Mutex
	sub   io.Closer

	accepted uint64
	rejected uint64
}

// NewIngressConsumer builds the consumer around the service layer.
func NewIngressConsumer(svc *Service, subject, durable string, logger *log.Logger) (*IngressConsumer, error) {
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
	return &IngressConsumer{svc: svc, logger: logger, subject: subject, durable: durable}, nil
}

// Start subscribes and processes reports until ctx is cancelled.
func (c *IngressConsumer) Start(ctx context.Context, subscriber Subscriber) error {
	if subscriber == nil {
		return errors.New("subscriber is required")
	}

	handler := func(msgCtx context.Context, data []byte) error {
		// Always ack: failures are dropped with accounting, not redelivered.
		if err := c.handleMessage(msgCtx, data); err != nil {
			atomic.AddUint64(&c.rejected, 1)
			ingressFailCount.Inc()
			c.logger.Printf("ERROR host report dropped: %v", err)
		} else {
			atomic.AddUint64(&c.accepted, 1)
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

	c.logger.Printf("INFO host ingress consumer started on %s", c.subject)
	return nil
}

// Close stops the underlying subscription if it was created.
func (c *IngressConsumer) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	return err
}

func (c *IngressConsumer) handleMessage(ctx context.Context, data []byte) error {
	var msg ingressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.Operation != OperationAddHost {
		return fmt.Errorf("unsupported operation %q", msg.Operation)
	}

	_, _, err := c.svc.ReportHost(ctx, ReportHostInput{
		Account:          msg.Data.Account,
		CanonicalFacts:   msg.Data.CanonicalFacts,
		DisplayName:      msg.Data.DisplayName,
		AnsibleHost:      msg.Data.AnsibleHost,
		Facts:            msg.Data.Facts,
		Tags:             msg.Data.Tags,
		Reporter:         msg.Data.Reporter,
		RequestID:        msg.Metadata.RequestID,
		PlatformMetadata: msg.PlatformMetadata,
	})
	return err
}

// IngressMetrics holds ingestion statistics.
type IngressMetrics struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Metrics returns a snapshot of the counters.
func (c *IngressConsumer) Metrics() IngressMetrics {
	return IngressMetrics{
		Accepted: atomic.LoadUint64(&c.accepted),
		Rejected: atomic.LoadUint64(&c.rejected),
	}
}
