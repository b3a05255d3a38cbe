package garner

import (
	"errors"
	"fmt"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	// ErrDegreeTooSmall is returned by Open when degree < 4, the minimum
	// fanout that lets a page split without underflowing either half.
	ErrDegreeTooSmall = errors.New("garner: degree must be at least 4")

	// ErrUnknownProtocol is returned by Open when the requested Protocol
	// value is not one of NoProtocol, Silo, or SiloHV.
	ErrUnknownProtocol = errors.New("garner: unknown concurrency protocol")

	// ErrNotImplemented is returned by Delete, whose merge-on-underflow
	// behavior is deliberately deferred; see DESIGN.md.
	ErrNotImplemented = errors.New("garner: delete is not implemented")

	// ErrInvariant is raised (via panic) when a structural invariant of the
	// tree is violated. The store's state is undefined afterward.
	ErrInvariant = errors.New("garner: structural invariant violated")

	// ErrTooManyTxns is returned by StartTxn when the Store was opened with
	// WithMaxTxns and every slot is already occupied.
	ErrTooManyTxns = errors.New("garner: too many concurrent transactions")
)

// invariantViolation panics with ErrInvariant wrapped with context. Callers
// never recover from this: a violated invariant means the tree is corrupt.
func invariantViolation(msg string) {
	panic(fmt.Errorf("%w: %s", ErrInvariant, msg))
}
