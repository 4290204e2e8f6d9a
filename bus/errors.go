package bus

import (
	"errors"
	"fmt"
)

// ErrPendingTransaction is returned by a Peer's ReactToBus when the
// addressed line is still pending (mid-fill from a still-outstanding
// miss). It is recoverable: the core that issued the request arms a
// retry and re-attempts the instruction on its next Ready tick. It
// never reaches the CLI or the user.
var ErrPendingTransaction = errors.New("bus: block is pending in a peer cache")

// InvariantViolationError indicates the coherence protocol reached a
// configuration forbidden by the MESI invariants — a bug in the
// simulator, not a user-facing condition. It is panicked at the
// detection site; driver recovers exactly one of these per Step so
// the CLI can report it and exit non-zero instead of crashing raw.
type InvariantViolationError struct {
	Block   uint64
	State   fmt.Stringer
	Kind    MessageKind
	Message string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("bus: invariant violation at block %#x: %s (peer state %s, message %s)",
		e.Block, e.Message, e.State, e.Kind)
}
