package inventory

import (
	"encoding/json"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// UnknownRequestID is the sentinel used when a lifecycle change was not
// triggered by a traceable request, such as a reaper run.
const UnknownRequestID = "-1"

// EventMetadata carries request tracing data on the wire.
type EventMetadata struct {
	RequestID string `json:"request_id"`
}

// OutboundEvent announces a host lifecycle change to downstream consumers.
// The host snapshot is taken at construction time; mutating the stored record
// afterwards does not alter an already-built event.
type OutboundEvent struct {
	Type             EventType      `json:"type"`
	Host             Host           `json:"host"`
	Timestamp        time.Time      `json:"timestamp"`
	PlatformMetadata map[string]any `json:"platform_metadata"`
	Metadata         EventMetadata  `json:"metadata"`
}

// buildEvent snapshots the host and stamps the event with the current UTC
// time. An empty request id falls back to the unknown sentinel.
func buildEvent(eventType EventType, host Host, platformMetadata map[string]any, requestID string) OutboundEvent {
	if requestID == "" {
		requestID = UnknownRequestID
	}
	return OutboundEvent{
		Type:             eventType,
		Host:             host.Clone(),
		Timestamp:        time.Now().UTC(),
		PlatformMetadata: cloneAnyMap(platformMetadata),
		Metadata:         EventMetadata{RequestID: requestID},
	}
}

// wireEncode serializes the event to its JSON wire form. This happens before
// any transport handoff so a malformed event fails the publish call itself.
func (e OutboundEvent) wireEncode() ([]byte, error) {
	start := time.Now()
	data, err := json.Marshal(e)
	eventSerializationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}
