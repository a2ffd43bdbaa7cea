package inventory

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service implements the inventory core operations: reporting, patching, and
// deleting hosts, and applying system-profile updates. Storage round trips
// complete synchronously within the calling request; event publication is
// handed off and never awaited.
type Service struct {
	store     Storage
	producer  EventProducer
	resolver  *Resolver
	staleness StalenessConfig
	logger    *log.Logger

	// now is a clock hook for tests.
	now func() time.Time
}

// NewService validates dependencies and builds the service.
func NewService(store Storage, producer EventProducer, staleness StalenessConfig, logger *log.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if producer == nil {
		return nil, errors.New("event producer is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if err := staleness.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		store:     store,
		producer:  producer,
		resolver:  NewResolver(store),
		staleness: staleness,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ReportHostInput is one inbound host report.
type ReportHostInput struct {
	Account        string
	CanonicalFacts CanonicalFacts

	// DisplayName and AnsibleHost only change when supplied.
	DisplayName *string
	AnsibleHost *string

	// Facts namespaces present here replace the stored namespace wholesale.
	Facts map[string]map[string]any

	// Tags, when non-nil, replaces the host's tag set (deduplicated).
	Tags []Tag

	Reporter         string
	RequestID        string
	PlatformMetadata map[string]any
}

// ReportHost canonicalizes and resolves the report, creates or merges the
// host record, recomputes its staleness window, and announces the change.
// The returned bool is true when a new host was created.
func (s *Service) ReportHost(ctx context.Context, in ReportHostInput) (Host, bool, error) {
	if in.Account == "" {
		return Host{}, false, &ValidationError{Detail: "account is required"}
	}

	facts := in.CanonicalFacts.Normalized()
	if facts.Empty() {
		return Host{}, false, &ValidationError{Detail: ErrNoCanonicalFacts.Error()}
	}

	for _, tag := range in.Tags {
		if err := tag.Validate(); err != nil {
			return Host{}, false, err
		}
	}

	existing, err := s.resolver.Resolve(ctx, in.Account, facts)
	if err != nil {
		return Host{}, false, err
	}

	window := s.staleness.Window(s.now())

	if existing == nil {
		host, err := s.createHost(ctx, in, facts, window)
		if err != nil {
			return Host{}, false, err
		}
		createdHostCount.Inc()
		s.logger.Printf("INFO created host %s in account %s", host.ID, host.Account)
		s.emit(EventCreated, host, in.PlatformMetadata, in.RequestID)
		return host, true, nil
	}

	host, err := s.store.UpdateMerged(ctx, existing.ID, func(h *Host) error {
		h.CanonicalFacts.Merge(facts)
		if in.DisplayName != nil {
			h.DisplayName = *in.DisplayName
		}
		if in.AnsibleHost != nil {
			h.AnsibleHost = *in.AnsibleHost
		}
		if h.Facts == nil {
			h.Facts = map[string]map[string]any{}
		}
		for ns, kv := range in.Facts {
			h.Facts[ns] = kv
		}
		if in.Tags != nil {
			h.Tags = DedupeTags(in.Tags)
		}
		h.Reporter = in.Reporter
		h.setWindow(window)
		return nil
	})
	if err != nil {
		return Host{}, false, err
	}

	updatedHostCount.Inc()
	s.logger.Printf("INFO updated host %s in account %s", host.ID, host.Account)
	s.emit(EventUpdated, host, in.PlatformMetadata, in.RequestID)
	return host, false, nil
}

func (s *Service) createHost(ctx context.Context, in ReportHostInput, facts CanonicalFacts, window StalenessWindow) (Host, error) {
	host := Host{
		ID:             uuid.New(),
		Account:        in.Account,
		CanonicalFacts: facts,
		Facts:          in.Facts,
		Tags:           DedupeTags(in.Tags),
		Reporter:       in.Reporter,
	}
	host.setWindow(window)

	switch {
	case in.DisplayName != nil && *in.DisplayName != "":
		host.DisplayName = *in.DisplayName
	case facts.FQDN != "":
		host.DisplayName = facts.FQDN
	default:
		host.DisplayName = host.ID.String()
	}
	if in.AnsibleHost != nil {
		host.AnsibleHost = *in.AnsibleHost
	}

	return s.store.Create(ctx, host)
}

// HostPatch is a partial update; only non-nil fields change, and the host's
// facts and tags are untouched.
type HostPatch struct {
	DisplayName *string
	AnsibleHost *string
}

// Empty reports whether the patch changes nothing.
func (p HostPatch) Empty() bool { return p.DisplayName == nil && p.AnsibleHost == nil }

// PatchResult is the per-id outcome of a batch patch.
type PatchResult struct {
	ID   uuid.UUID
	Host Host
	Err  error
}

// PatchHosts applies the patch to each id independently. A missing id fails
// that id only; the rest of the batch proceeds.
func (s *Service) PatchHosts(ctx context.Context, ids []uuid.UUID, patch HostPatch, requestID string) []PatchResult {
	results := make([]PatchResult, 0, len(ids))

	for _, id := range ids {
		host, err := s.store.UpdateMerged(ctx, id, func(h *Host) error {
			if patch.DisplayName != nil {
				h.DisplayName = *patch.DisplayName
			}
			if patch.AnsibleHost != nil {
				h.AnsibleHost = *patch.AnsibleHost
			}
			return nil
		})
		if err != nil {
			results = append(results, PatchResult{ID: id, Err: err})
			continue
		}

		updatedHostCount.Inc()
		s.emit(EventUpdated, host, nil, requestID)
		results = append(results, PatchResult{ID: id, Host: host})
	}

	return results
}

// DeleteHost removes a host by explicit request and announces the deletion.
func (s *Service) DeleteHost(ctx context.Context, id uuid.UUID, requestID string) error {
	host, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		// Lost a race with the reaper or another request.
		return &NotFoundError{ID: id}
	}

	deletedHostCount.Inc()
	s.logger.Printf("INFO deleted host %s in account %s", id, host.Account)
	s.emit(EventDeleted, host, nil, requestID)
	return nil
}

// ApplySystemProfileUpdate merges a partial system profile into the host. A
// missing host is reported back so the consumer can count and drop the
// message; it is never retried.
func (s *Service) ApplySystemProfileUpdate(ctx context.Context, id uuid.UUID, profile map[string]any) error {
	return s.store.MergeSystemProfile(ctx, id, profile)
}

// GetHost fetches one host.
func (s *Service) GetHost(ctx context.Context, id uuid.UUID) (Host, error) {
	return s.store.Get(ctx, id)
}

// ListHosts pages through an account's hosts.
func (s *Service) ListHosts(ctx context.Context, account string, limit, offset int) ([]Host, error) {
	return s.store.List(ctx, account, limit, offset)
}

// emit builds and publishes a lifecycle event. Publication failures are
// logged and counted but never fail the primary write; the write and the
// event are not transactionally linked.
func (s *Service) emit(eventType EventType, host Host, platformMetadata map[string]any, requestID string) {
	event := buildEvent(eventType, host, platformMetadata, requestID)
	if err := s.producer.Publish(event, host.ID.String()); err != nil {
		s.logger.Printf("ERROR %s event for host %s not published: %v", eventType, host.ID, err)
	}
}
