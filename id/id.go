// Package id defines TypeID-based identity types for all megarray entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all megarray entity types.
const (
	PrefixContent   Prefix = "content"
	PrefixVersion   Prefix = "ver"
	PrefixApproval  Prefix = "apr"
	PrefixRecurring Prefix = "rjob"
)

// ID is the primary identifier type for all megarray entities. It wraps a
// TypeID providing a prefix-qualified, globally unique, sortable identifier
// in the format "prefix_suffix".
type ID struct {
	inner typeid.AnyID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.WithPrefix(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "content_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.FromString(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Per-entity aliases and constructors
// ──────────────────────────────────────────────────

// ContentID identifies a content item (prefix: "content").
type ContentID = ID

// VersionID identifies an immutable content version (prefix: "ver").
type VersionID = ID

// ApprovalID identifies an approval request (prefix: "apr").
type ApprovalID = ID

// RecurringID identifies a recurring generation job (prefix: "rjob").
type RecurringID = ID

// NewContentID generates a new unique content ID.
func NewContentID() ID { return New(PrefixContent) }

// NewVersionID generates a new unique version ID.
func NewVersionID() ID { return New(PrefixVersion) }

// NewApprovalID generates a new unique approval request ID.
func NewApprovalID() ID { return New(PrefixApproval) }

// NewRecurringID generates a new unique recurring job ID.
func NewRecurringID() ID { return New(PrefixRecurring) }

// ParseContentID parses a string and validates the "content" prefix.
func ParseContentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixContent) }

// ParseRecurringID parses a string and validates the "rjob" prefix.
func ParseRecurringID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRecurring) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
