package garner

import (
	"cmp"
	"math"
	"sync/atomic"
)

// Store is the façade a caller interacts with: it owns one B+-tree index
// and enforces whichever concurrency-control Protocol it was opened with.
type Store[K cmp.Ordered, V any] struct {
	tree     *tree[K, V]
	protocol Protocol
	logger   Logger

	slots *txnSlots[K, V]

	// serCounter hands out the serialization-order instrumentation used by
	// tests that want to assert a particular commit ordering; production
	// callers that never call CommitAt don't touch it.
	serCounter atomic.Uint64
}

// Open creates a Store with the given page fanout (degree, minimum 4) and
// concurrency-control protocol.
func Open[K cmp.Ordered, V any](degree int, protocol Protocol, opts ...Option) (*Store[K, V], error) {
	if degree < 4 {
		return nil, ErrDegreeTooSmall
	}
	switch protocol {
	case NoProtocol, Silo, SiloHV:
	default:
		return nil, ErrUnknownProtocol
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Store[K, V]{
		tree:     newTree[K, V](degree, o.logger),
		protocol: protocol,
		logger:   o.logger,
	}
	if o.maxTxns > 0 {
		s.slots = newTxnSlots[K, V](o.maxTxns)
	}
	return s, nil
}

// newTxnCxt builds the hook context appropriate for the Store's protocol,
// or nil under NoProtocol.
func (s *Store[K, V]) newTxnCxt() txnCxt[K, V] {
	switch s.protocol {
	case Silo:
		return newSiloTxn[K, V]()
	case SiloHV:
		return newSiloHVTxn[K, V]()
	default:
		return nil
	}
}

// Txn is an explicit, caller-managed transaction: a sequence of Put/Get/Scan
// calls that all validate and commit together at Commit. Every call it
// exposes mirrors the single-operation convenience on Store, but against
// the shared hook context rather than a fresh one per call.
type Txn[K cmp.Ordered, V any] struct {
	store *Store[K, V]
	cxt   txnCxt[K, V]
	slot  int
}

// StartTxn begins an explicit transaction. It returns ErrTooManyTxns if the
// Store was opened with WithMaxTxns and every slot is occupied.
func (s *Store[K, V]) StartTxn() (*Txn[K, V], error) {
	txn := &Txn[K, V]{store: s, cxt: s.newTxnCxt(), slot: -1}
	if s.slots != nil {
		slot, _, err := s.slots.register(txn.cxt)
		if err != nil {
			return nil, err
		}
		txn.slot = slot
	}
	return txn, nil
}

func (t *Txn[K, V]) Put(key K, value V) {
	t.store.tree.Put(key, value, t.cxt)
}

func (t *Txn[K, V]) Get(key K) (value V, found bool) {
	return t.store.tree.Get(key, t.cxt)
}

func (t *Txn[K, V]) Scan(lkey, rkey K) []Pair[K, V] {
	return t.store.tree.Scan(lkey, rkey, t.cxt)
}

// Commit runs the protocol's three-phase validation and returns whether it
// succeeded. A failed commit leaves the tree exactly as it was before this
// transaction's buffered writes (structural changes made along the way,
// such as a split or a newly injected key, are never rolled back; a record
// created for an aborted write stays invalid and so stays invisible to
// readers).
func (t *Txn[K, V]) Commit() bool {
	if t.store.slots != nil && t.slot >= 0 {
		defer t.store.slots.unregister(t.slot)
	}
	if t.cxt == nil {
		return true
	}
	ok := t.cxt.TryCommit(nil, nil)
	if !ok {
		t.store.logger.Warn("transaction aborted", "protocol", t.store.protocol.String())
	}
	return ok
}

// CommitAt is Commit but additionally records the serialization order this
// commit was assigned, for tests asserting a specific interleaving.
func (t *Txn[K, V]) CommitAt() (ok bool, serOrder uint64) {
	if t.store.slots != nil && t.slot >= 0 {
		defer t.store.slots.unregister(t.slot)
	}
	if t.cxt == nil {
		return true, 0
	}
	ok = t.cxt.TryCommit(&t.store.serCounter, &serOrder)
	if !ok {
		t.store.logger.Warn("transaction aborted", "protocol", t.store.protocol.String(), "ser_order", serOrder)
	}
	return ok, serOrder
}

// Put writes key/value as a single implicit transaction and reports whether
// it committed. Under NoProtocol there is nothing to abort and committed is
// always true. Under Silo/SiloHV a false result means the single attempt
// was aborted by a concurrent writer; per spec.md §7 this is a transient,
// retryable outcome the caller decides how to handle -- Put makes exactly
// one attempt rather than retrying internally, so a caller can never be
// livelocked by this call under sustained contention. Implicit operations
// never consume a WithMaxTxns slot.
func (s *Store[K, V]) Put(key K, value V) (committed bool) {
	if s.protocol == NoProtocol {
		s.tree.Put(key, value, nil)
		return true
	}
	cxt := s.newTxnCxt()
	s.tree.Put(key, value, cxt)
	if !cxt.TryCommit(nil, nil) {
		s.logger.Warn("implicit put aborted", "protocol", s.protocol.String())
		return false
	}
	return true
}

// Get reads key as a single implicit transaction and reports whether it
// committed, following the same single-attempt contract as Put.
func (s *Store[K, V]) Get(key K) (value V, found bool, committed bool) {
	if s.protocol == NoProtocol {
		value, found = s.tree.Get(key, nil)
		return value, found, true
	}
	cxt := s.newTxnCxt()
	value, found = s.tree.Get(key, cxt)
	if !cxt.TryCommit(nil, nil) {
		s.logger.Warn("implicit get aborted", "protocol", s.protocol.String())
		return value, found, false
	}
	return value, found, true
}

// Scan reads every key in [lkey, rkey] as a single implicit transaction and
// reports whether it committed, following the same single-attempt contract
// as Put.
func (s *Store[K, V]) Scan(lkey, rkey K) (results []Pair[K, V], committed bool) {
	if s.protocol == NoProtocol {
		return s.tree.Scan(lkey, rkey, nil), true
	}
	cxt := s.newTxnCxt()
	results = s.tree.Scan(lkey, rkey, cxt)
	if !cxt.TryCommit(nil, nil) {
		s.logger.Warn("implicit scan aborted", "protocol", s.protocol.String())
		return results, false
	}
	return results, true
}

// Delete is part of the intended API surface but not implemented; see tree.Delete.
func (s *Store[K, V]) Delete(key K) error {
	_, err := s.tree.Delete(key, nil)
	return err
}

// ActiveTxns returns the number of explicit transactions currently
// registered, or 0 if the Store was not opened with WithMaxTxns.
func (s *Store[K, V]) ActiveTxns() int {
	if s.slots == nil {
		return 0
	}
	return s.slots.activeLen()
}

// OldestActiveTxn returns the sequence number of the longest-running
// currently-registered explicit transaction, and false if the Store was
// not opened with WithMaxTxns or no explicit transaction is open.
func (s *Store[K, V]) OldestActiveTxn() (seq uint64, ok bool) {
	if s.slots == nil {
		return 0, false
	}
	seq = s.slots.oldestActive()
	if seq == math.MaxUint64 {
		return 0, false
	}
	return seq, true
}
