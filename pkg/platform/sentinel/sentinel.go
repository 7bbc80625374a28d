package sentinel

import "errors"

// Sentinel errors for persistence facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: document does not exist
//   - ErrAlreadyUsed: a create collided with an existing live record
//     (active verification, open tracking session)
//   - ErrInvalidState: document is in the wrong state for the mutation
//   - ErrClosed: tracking session no longer accepts writes
//   - ErrUnavailable: backing store unreachable or timed out
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrClosed       = errors.New("closed")
	ErrUnavailable  = errors.New("unavailable")
)
