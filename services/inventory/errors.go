package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports malformed or insufficient input on a single
// request. It maps to a 400 at the HTTP boundary.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// AmbiguousIdentityError reports that a set of canonical facts matched more
// than one stored host. The resolver never picks a winner; the caller sees a
// conflict instead.
type AmbiguousIdentityError struct {
	Account string
	HostIDs []uuid.UUID
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("canonical facts match %d distinct hosts in account %s", len(e.HostIDs), e.Account)
}

// NotFoundError reports a missing host by id. Batch operations report it per
// id rather than failing the whole batch.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("host %s not found", e.ID) }

// SerializationError reports that an outbound event could not be built. The
// primary host write is never rolled back because of it.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return fmt.Sprintf("serialize event: %v", e.Err) }

func (e *SerializationError) Unwrap() error { return e.Err }

// TagFormatError reports an unparseable or over-specified tag.
type TagFormatError struct {
	Input  string
	Reason error
}

func (e *TagFormatError) Error() string { return fmt.Sprintf("invalid tag %q: %v", e.Input, e.Reason) }

func (e *TagFormatError) Unwrap() error { return e.Reason }

var (
	// ErrNoCanonicalFacts rejects a host report carrying no identifying facts.
	ErrNoCanonicalFacts = errors.New("at least one canonical fact must be present")

	// ErrTooManyKeys rejects a nested tag with more than one namespace or key.
	ErrTooManyKeys = errors.New("nested tag has too many keys")

	// ErrTooManyValues rejects a nested tag with more than one value.
	ErrTooManyValues = errors.New("nested tag has too many values")

	errUnparseableTag = errors.New("tag is not namespace/key=value shaped")
	errTagMissingKey  = errors.New("tag key is required")
)
