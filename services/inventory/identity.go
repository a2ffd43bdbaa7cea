package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Resolver decides whether an incoming report is a new host or an update to a
// stored one.
type Resolver struct {
	store Storage
}

// NewResolver wires the resolver to its host lookup collaborator.
func NewResolver(store Storage) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the account's hosts sharing any canonical fact with the
// incoming (normalized, non-empty) set. It returns the matching host, or nil
// when the report describes a new host. Two or more distinct matches are a
// data-integrity conflict and are never silently collapsed.
func (r *Resolver) Resolve(ctx context.Context, account string, facts CanonicalFacts) (*Host, error) {
	if facts.Empty() {
		return nil, &ValidationError{Detail: ErrNoCanonicalFacts.Error()}
	}

	matches, err := r.store.FindByCanonicalFacts(ctx, account, facts)
	if err != nil {
		return nil, err
	}

	distinct := make(map[uuid.UUID]Host, len(matches))
	ids := make([]uuid.UUID, 0, len(matches))
	for _, h := range matches {
		if _, seen := distinct[h.ID]; seen {
			continue
		}
		distinct[h.ID] = h
		ids = append(ids, h.ID)
	}

	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		match := distinct[ids[0]]
		return &match, nil
	default:
		return nil, &AmbiguousIdentityError{Account: account, HostIDs: ids}
	}
}
