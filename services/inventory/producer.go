package inventory

import (
	"errors"
	"log"

	"muster/pkg/bus"
)

// EventProducer publishes lifecycle events. Publish returns before the
// transport confirms delivery; completion is tracked asynchronously through
// counters and logs. A serialization failure is the only error surfaced to
// the caller, and the caller's primary write must still succeed.
type EventProducer interface {
	Publish(event OutboundEvent, key string) error
}

// Transport is the asynchronous send the producer hands serialized messages
// to. *bus.Bus satisfies it; tests substitute a fake.
type Transport interface {
	PublishAsync(subject, key string, data []byte) (bus.PendingAck, error)
}

// BusProducer publishes events through a shared, long-lived transport
// connection. It is safe for concurrent use without caller-side locking and
// never retries a failed send; redelivery is the broker's concern.
type BusProducer struct {
	transport Transport
	subject   string
	logger    *log.Logger
}

// NewBusProducer wires a producer to its transport.
func NewBusProducer(transport Transport, subject string, logger *log.Logger) (*BusProducer, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if subject == "" {
		return nil, errors.New("subject is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &BusProducer{transport: transport, subject: subject, logger: logger}, nil
}

// Publish serializes the event, hands it to the transport, and returns
// without waiting for the acknowledgement. Delivery success and failure are
// counted when the pending ack resolves.
func (p *BusProducer) Publish(event OutboundEvent, key string) error {
	data, err := event.wireEncode()
	if err != nil {
		return err
	}

	pending, err := p.transport.PublishAsync(p.subject, key, data)
	if err != nil {
		egressFailureCount.Inc()
		p.logger.Printf("ERROR event handoff failed for host %s: %v", key, err)
		return err
	}

	go p.await(pending, key)
	return nil
}

func (p *BusProducer) await(pending bus.PendingAck, key string) {
	select {
	case <-pending.Ok():
		egressSuccessCount.Inc()
		p.logger.Printf("DEBUG event delivered for host %s", key)
	case err := <-pending.Err():
		egressFailureCount.Inc()
		p.logger.Printf("ERROR event delivery failed for host %s: %v", key, err)
	}
}

// NullProducer is the disabled variant for environments without a transport.
// It runs the same serialization and logging path and then discards the
// message, so callers are unaffected by the substitution.
type NullProducer struct {
	logger *log.Logger
}

// NewNullProducer returns a producer that drops every event after logging it.
func NewNullProducer(logger *log.Logger) (*NullProducer, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	logger.Printf("INFO event production disabled, events will be logged and dropped")
	return &NullProducer{logger: logger}, nil
}

// Publish serializes and logs the event without sending it anywhere.
func (p *NullProducer) Publish(event OutboundEvent, key string) error {
	data, err := event.wireEncode()
	if err != nil {
		return err
	}
	p.logger.Printf("DEBUG dropping %s event for host %s (%d bytes)", event.Type, key, len(data))
	return nil
}
