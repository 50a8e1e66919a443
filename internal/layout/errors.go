package layout

import "errors"

var (
	// ErrUnknownKind is returned when a kind code is not one of the sixteen tracked kinds.
	ErrUnknownKind = errors.New("layout: unknown kind")

	// ErrInvalidID is returned when an entity id is empty.
	ErrInvalidID = errors.New("layout: invalid entity id")

	// ErrSnapshotNotFound is returned when no stored snapshot exists.
	ErrSnapshotNotFound = errors.New("layout: snapshot not found")
)
