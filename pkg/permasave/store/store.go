// Package store provides access to a content-addressed object store with a
// secondary tag index. Objects are immutable: uploading returns an identifier
// derived from (or assigned to) the content, and the tag set attached at
// upload time is the only way to find an object again without knowing its
// identifier.
package store

import (
	"context"
	"errors"
)

// Canonical tag names used by the checkpoint layer. Stores treat tags as
// opaque key/value pairs; these constants only fix the spelling on the wire.
const (
	TagOwner       = "owner"
	TagApplication = "application"
	TagCreatedAt   = "createdAt"
	TagKind        = "kind"
)

// KindCheckpoint is the tag value marking checkpoint objects.
const KindCheckpoint = "checkpoint"

// Tags is a set of metadata annotations attached to a stored object.
// When used as a query filter, every pair must match exactly.
type Tags map[string]string

// Clone returns a copy of the tag set.
func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Matches reports whether every pair in filter is present in t.
func (t Tags) Matches(filter Tags) bool {
	for k, v := range filter {
		if t[k] != v {
			return false
		}
	}
	return true
}

// Entry is a query result: an object identifier plus its tag set.
// The content body is not included; use Fetch to retrieve it.
type Entry struct {
	ID   string
	Tags Tags
}

// ContentStore is the narrow contract the checkpoint layer depends on.
// Implementations must be safe for concurrent use; each call is an
// independent request with no state shared between calls.
type ContentStore interface {
	// Upload stores body with the given tags attached as indexable metadata
	// and returns the object's content identifier.
	Upload(ctx context.Context, body []byte, tags Tags) (string, error)

	// Query returns all entries whose tags satisfy an equality match on
	// every pair in filter. Returns an empty slice when nothing matches.
	Query(ctx context.Context, filter Tags) ([]Entry, error)

	// Fetch retrieves the content body for one identifier.
	// Returns ErrNotFound if no object has that identifier.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound indicates no object exists for the given identifier.
	ErrNotFound = errors.New("object not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("content store closed")
)
