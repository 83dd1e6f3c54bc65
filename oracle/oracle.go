// Package oracle defines the timestamp-oracle contract the coordinator
// depends on and a local, non-distributed implementation suitable for
// single-process tests and the mockclient demo. A real deployment backs
// Oracle with a replicated timestamp service (e.g. PD's TSO in the TiKV
// stack this client's coordinator logic was ported from); this module
// treats the oracle as a Non-goal to implement and ships only the
// interface plus a correctness-preserving local stand-in.
package oracle

import (
	"context"
	"sync/atomic"

	"github.com/pingcap/themis-go/themiserr"
)

// Oracle allocates globally monotonic timestamps. Implementations must be
// safe for concurrent use: the coordinator calls GetStartTS and
// GetCommitTS from independent transactions running in parallel.
type Oracle interface {
	// GetStartTS returns a fresh timestamp to anchor a new transaction's
	// snapshot read.
	GetStartTS(ctx context.Context) (uint64, error)
	// GetCommitTS returns a fresh timestamp strictly greater than every
	// timestamp previously returned, including every prior GetStartTS.
	GetCommitTS(ctx context.Context) (uint64, error)
}

// Local is an in-process Oracle backed by an atomic counter. It gives
// every call a distinct, monotonically increasing value, which satisfies
// the coordinator's correctness requirement (commitTs > startTs for every
// transaction, and a fresh commitTs exceeds every lock timestamp already
// observed) without any network round trip.
type Local struct {
	counter uint64
}

// NewLocal creates a Local oracle whose first allocated timestamp is 1.
// Zero is reserved so it can serve as a deliberately-invalid sentinel.
func NewLocal() *Local {
	return &Local{}
}

// GetStartTS allocates the next timestamp.
func (l *Local) GetStartTS(ctx context.Context) (uint64, error) {
	return l.next(ctx)
}

// GetCommitTS allocates the next timestamp.
func (l *Local) GetCommitTS(ctx context.Context) (uint64, error) {
	return l.next(ctx)
}

func (l *Local) next(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, themiserr.Wrap(themiserr.KindIO, ctx.Err(), "oracle: context cancelled")
	default:
	}
	return atomic.AddUint64(&l.counter, 1), nil
}
