package timeline

import "errors"

var (
	// ErrMissingID indicates a message without an id in either namespace.
	ErrMissingID = errors.New("timeline: missing message id")

	// ErrInvalidChannel indicates an unknown channel tag.
	ErrInvalidChannel = errors.New("timeline: invalid channel")

	// ErrMissingSortKey indicates a message without a sort timestamp.
	ErrMissingSortKey = errors.New("timeline: missing sort key")

	// ErrInvalidKind indicates an unknown payload variant.
	ErrInvalidKind = errors.New("timeline: invalid message kind")

	// ErrDuplicateEntry indicates an insert that would violate the one entry
	// per (id, channel) invariant.
	ErrDuplicateEntry = errors.New("timeline: duplicate entry")

	// ErrNotFound indicates a lookup for an entry the store does not hold.
	ErrNotFound = errors.New("timeline: entry not found")
)
