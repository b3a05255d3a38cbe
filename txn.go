package garner

import (
	"cmp"
	"sync/atomic"
)

// Protocol selects which concurrency-control policy a Store enforces.
type Protocol int

const (
	// NoProtocol bypasses all transaction hooks. Reads and writes go
	// straight through a record's own latch; StartTxn returns a Txn with no
	// hook context, whose Commit always succeeds, and every operation
	// behaves as its own single-operation transaction.
	NoProtocol Protocol = iota

	// Silo is a per-record optimistic concurrency-control validator
	// (Tu et al., SOSP'13).
	Silo

	// SiloHV is Silo augmented with hierarchical validation: subtree-level
	// version numbers let a committing scan skip re-validating every record
	// under an untouched subtree.
	SiloHV
)

func (p Protocol) String() string {
	switch p {
	case NoProtocol:
		return "none"
	case Silo:
		return "silo"
	case SiloHV:
		return "silo-hv"
	default:
		return "unknown"
	}
}

// txnCxt is the hook surface every concurrency-control protocol implements.
// The B+-tree core calls these at well-defined points during traversal and
// leaf operations; NoProtocol has no implementation at all (the tree simply
// never calls these hooks when txn is nil), matching the design note that
// "no concurrency" is the absence of a context rather than a no-op variant.
type txnCxt[K cmp.Ordered, V any] interface {
	// ExecReadRecord captures the record's version and returns the value
	// visible to this transaction. ok is false for a phantom record (exists
	// but never committed-valid, and not buffered locally).
	ExecReadRecord(rec *record[K, V]) (value V, ok bool)

	// ExecWriteRecord buffers a write locally; it must never mutate rec.
	ExecWriteRecord(rec *record[K, V], value V)

	// ExecReadTraverseNode is called for every internal page visited during
	// a read-mode crab, right before its read latch is released, and for
	// the final leaf after the caller is done with it.
	ExecReadTraverseNode(p *page[K, V])

	// ExecWriteTraverseNode is called for every ancestor released early
	// during a write-mode crab, and for every page still held when the
	// caller finishes with the path (including the leaf).
	ExecWriteTraverseNode(p *page[K, V], height int)

	ExecEnterPut()
	ExecLeavePut()
	ExecEnterGet()
	ExecLeaveGet()
	ExecEnterDelete()
	ExecLeaveDelete()
	ExecEnterScan()
	ExecLeaveScan()

	// TryCommit runs the three-phase validation/install protocol. serCounter
	// and serOrder are test-only instrumentation: when both non-nil,
	// serOrder receives a fetch-and-incremented value from serCounter taken
	// at the transaction's serialization point.
	TryCommit(serCounter *atomic.Uint64, serOrder *uint64) bool
}
