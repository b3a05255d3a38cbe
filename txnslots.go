package garner

import (
	"cmp"
	"math"
	"sync/atomic"
)

// txnSlot pairs a registered transaction with the sequence number it was
// assigned when it started.
type txnSlot[K cmp.Ordered, V any] struct {
	txn txnCxt[K, V]
	seq uint64
}

// txnSlots bounds the number of simultaneously open explicit transactions
// and tracks the oldest one still active. The slot array is a fixed-size
// set of atomic pointers claimed by CAS; each register allocates one small
// entry, and the active count, sequence counter and min-sequence cache are
// shared atomics.
type txnSlots[K cmp.Ordered, V any] struct {
	slots       []atomic.Pointer[txnSlot[K, V]]
	maxSize     int
	activeCount atomic.Int32
	minSeq      atomic.Uint64
	seqCounter  counter
}

func newTxnSlots[K cmp.Ordered, V any](maxTxns int) *txnSlots[K, V] {
	ts := &txnSlots[K, V]{
		slots:   make([]atomic.Pointer[txnSlot[K, V]], maxTxns),
		maxSize: maxTxns,
	}
	ts.minSeq.Store(math.MaxUint64)
	return ts
}

// register finds an empty slot and assigns it the given transaction,
// returning the slot index and the sequence number stamped on it.
func (ts *txnSlots[K, V]) register(txn txnCxt[K, V]) (slot int, seq uint64, err error) {
	seq = ts.seqCounter.next()
	entry := &txnSlot[K, V]{txn: txn, seq: seq}

	for i := 0; i < ts.maxSize; i++ {
		if ts.slots[i].CompareAndSwap(nil, entry) {
			ts.activeCount.Add(1)

			for {
				current := ts.minSeq.Load()
				if seq >= current {
					break
				}
				if ts.minSeq.CompareAndSwap(current, seq) {
					break
				}
			}
			return i, seq, nil
		}
	}
	return -1, 0, ErrTooManyTxns
}

func (ts *txnSlots[K, V]) unregister(slot int) {
	entry := ts.slots[slot].Load()
	ts.slots[slot].Store(nil)

	if ts.activeCount.Add(-1) == 0 {
		ts.minSeq.Store(math.MaxUint64)
	} else if entry != nil && entry.seq == ts.minSeq.Load() {
		ts.rescanMin()
	}
}

func (ts *txnSlots[K, V]) rescanMin() {
	min := uint64(math.MaxUint64)
	for i := 0; i < ts.maxSize; i++ {
		if entry := ts.slots[i].Load(); entry != nil && entry.seq < min {
			min = entry.seq
		}
	}
	ts.minSeq.Store(min)
}

// oldestActive returns the sequence number of the longest-running
// currently-registered transaction, or math.MaxUint64 if none are active.
func (ts *txnSlots[K, V]) oldestActive() uint64 {
	if ts.activeCount.Load() == 0 {
		return math.MaxUint64
	}
	return ts.minSeq.Load()
}

func (ts *txnSlots[K, V]) activeLen() int {
	return int(ts.activeCount.Load())
}
