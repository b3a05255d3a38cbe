package garner

import (
	"cmp"
	"sort"
	"sync/atomic"
)

// hvPageVisit is one entry of a Silo-HV transaction's page_list: a page
// visited during traversal, the hv_ver it carried at that moment, and the
// half-open range [recordIdxStart, recordIdxEnd) of record_list entries
// read after the previous page_list entry was closed and before this one.
// Those entries are the only ones this page's subtree "owns"; every other
// page's range is disjoint from it.
type hvPageVisit[K cmp.Ordered, V any] struct {
	p              *page[K, V]
	ver            uint64
	recordIdxStart int
	recordIdxEnd   int
}

// siloHVTxn implements Silo augmented with hierarchical validation. It
// tracks the same record-level read/write sets as siloTxn, plus a page_list
// recording which subtree each read fell under. At commit time, a page
// whose hv_sem is zero and whose hv_ver has not moved since it was visited
// lets every rec_list entry in its range be trusted without re-comparing
// individual record versions: a trusted entry is neither latched nor read
// again, and its cached version is what feeds the commit version.
type siloHVTxn[K cmp.Ordered, V any] struct {
	reads  []siloReadEntry[K, V]
	writes []siloWriteEntry[K, V]

	writeIndex map[*record[K, V]]int

	pages []hvPageVisit[K, V]

	// writePages is the deduplicated set of pages touched by a write-mode
	// traversal in this transaction (ancestors of every Put so far,
	// including the leaf). hv_sem is incremented/decremented around
	// install for exactly these pages.
	writePages []*page[K, V]
	writeSeen  map[*page[K, V]]bool

	mustAbort bool
}

func newSiloHVTxn[K cmp.Ordered, V any]() *siloHVTxn[K, V] {
	return &siloHVTxn[K, V]{
		writeIndex: make(map[*record[K, V]]int),
		writeSeen:  make(map[*page[K, V]]bool),
	}
}

func (s *siloHVTxn[K, V]) ExecReadRecord(rec *record[K, V]) (value V, ok bool) {
	if idx, buffered := s.writeIndex[rec]; buffered {
		return s.writes[idx].value, true
	}

	value, version, valid := rec.snapshot()
	for i := range s.reads {
		if s.reads[i].rec == rec && s.reads[i].version != version {
			s.mustAbort = true
		}
	}
	s.reads = append(s.reads, siloReadEntry[K, V]{rec: rec, version: version})
	return value, valid
}

func (s *siloHVTxn[K, V]) ExecWriteRecord(rec *record[K, V], value V) {
	if idx, buffered := s.writeIndex[rec]; buffered {
		s.writes[idx].value = value
		return
	}
	s.writeIndex[rec] = len(s.writes)
	s.writes = append(s.writes, siloWriteEntry[K, V]{rec: rec, value: value})
}

// ExecReadTraverseNode closes out the page's slot in page_list: every read
// that happened since the previous page was closed belongs to this page's
// subtree.
func (s *siloHVTxn[K, V]) ExecReadTraverseNode(p *page[K, V]) {
	start := 0
	if n := len(s.pages); n > 0 {
		start = s.pages[n-1].recordIdxEnd
	}
	s.pages = append(s.pages, hvPageVisit[K, V]{
		p:              p,
		ver:            p.hvVer.Load(),
		recordIdxStart: start,
		recordIdxEnd:   len(s.reads),
	})
}

// ExecWriteTraverseNode records p as a page this transaction's writes pass
// through. Its hv_ver is bumped eagerly here rather than deferred to
// commit: structural changes (a split at p during this call) are
// unconditional regardless of whether the transaction eventually commits,
// and bumping for an ordinary ancestor-of-a-pending-write too is always
// safe to do early -- at worst it forces some other transaction's validator
// down the slow per-record path for no reason, never an incorrect skip.
// TryCommit bumps every such page once more after installing its writes,
// so a reader that snapshotted hv_ver after this eager bump still sees it
// move.
func (s *siloHVTxn[K, V]) ExecWriteTraverseNode(p *page[K, V], height int) {
	if !s.writeSeen[p] {
		s.writeSeen[p] = true
		s.writePages = append(s.writePages, p)
	}
	p.hvVer.Add(1)
}

func (s *siloHVTxn[K, V]) ExecEnterPut()    {}
func (s *siloHVTxn[K, V]) ExecLeavePut()    {}
func (s *siloHVTxn[K, V]) ExecEnterGet()    {}
func (s *siloHVTxn[K, V]) ExecLeaveGet()    {}
func (s *siloHVTxn[K, V]) ExecEnterDelete() {}
func (s *siloHVTxn[K, V]) ExecLeaveDelete() {}
func (s *siloHVTxn[K, V]) ExecEnterScan()   {}
func (s *siloHVTxn[K, V]) ExecLeaveScan()   {}

// TryCommit short-circuits to false immediately if mustAbort was already
// latched during execution, before touching any hv_sem counter, record
// latch, or serialization-order slot. Otherwise it mirrors siloTxn.TryCommit's
// three phases, but validates the read set through the page_list: a page
// that still carries the hv_ver it had when visited, and has no in-flight
// committing writer (hv_sem == 0), lets its whole record range be trusted
// at the cached version rather than re-compared record by record.
func (s *siloHVTxn[K, V]) TryCommit(serCounter *atomic.Uint64, serOrder *uint64) bool {
	if s.mustAbort {
		return false
	}

	sort.Slice(s.writes, func(i, j int) bool {
		return s.writes[i].rec.seq < s.writes[j].rec.seq
	})

	for _, p := range s.writePages {
		p.hvSem.Add(1)
	}
	defer func() {
		for _, p := range s.writePages {
			p.hvSem.Add(-1)
		}
	}()

	for _, w := range s.writes {
		w.rec.latch.Lock()
	}
	defer func() {
		for _, w := range s.writes {
			w.rec.latch.Unlock()
		}
	}()

	if serCounter != nil && serOrder != nil {
		*serOrder = serCounter.Add(1)
	}

	trusted := make([]bool, len(s.reads))
	for _, pv := range s.pages {
		if pv.recordIdxStart >= pv.recordIdxEnd {
			continue
		}
		if pv.p.hvSem.Load() == 0 && pv.p.hvVer.Load() == pv.ver {
			for i := pv.recordIdxStart; i < pv.recordIdxEnd; i++ {
				trusted[i] = true
			}
		}
	}

	maxVersion := uint64(0)
	for i, r := range s.reads {
		var version uint64
		if _, isWrite := s.writeIndex[r.rec]; isWrite {
			_, version, _ = r.rec.readLocked()
		} else if trusted[i] {
			version = r.version
		} else {
			_, v, _, ok := r.rec.tryReadLocked()
			if !ok {
				return false
			}
			version = v
		}
		if version != r.version {
			return false
		}
		if version > maxVersion {
			maxVersion = version
		}
	}
	for _, w := range s.writes {
		_, version, _ := w.rec.readLocked()
		if version > maxVersion {
			maxVersion = version
		}
	}

	newVersion := maxVersion + 1
	for _, w := range s.writes {
		w.rec.install(w.value, newVersion)
	}
	for _, p := range s.writePages {
		p.hvVer.Add(1)
	}
	return true
}
