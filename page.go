package garner

import (
	"cmp"
	"sort"
	"sync"
	"sync/atomic"
)

// page is a B+-tree node. The same struct backs all four logical kinds the
// spec distinguishes (leaf, internal, root-as-leaf, root-as-internal): which
// one a page behaves as is derived from isRoot and height rather than
// through separate types, per the "tagged variant over open inheritance"
// guidance for this port -- here collapsed even further, since leaf-ness is
// already fully determined by height and the root needs both a records and
// a children arm anyway.
//
// All fields below require the caller to hold the page's latch in the
// documented mode, except hvSem/hvVer which are atomics used only by the
// Silo-HV protocol and are safe to load/store without the page latch.
type page[K cmp.Ordered, V any] struct {
	latch sync.RWMutex

	isRoot bool
	height int // 1 == leaf level, >1 == internal
	degree int

	keys []K

	// records is populated (len == len(keys)) when height == 1: true for
	// ordinary leaves and for the root acting as a leaf.
	records []*record[K, V]

	// children is populated (len == len(keys)+1) when height > 1: true for
	// ordinary internal pages and for the root acting as internal.
	children []*page[K, V]

	// next is the right-sibling link. nil for the root (which has none) and
	// for the right-most page at its level.
	next *page[K, V]

	// highKey is an upper bound on the keys under this page's subtree. It
	// equals the smallest key of the right sibling, or is absent (nil) for
	// the right-most page at its level (always the case for the root).
	highKey *K

	// hv_sem / hv_ver from the Silo-HV protocol: count of in-flight
	// committing writers under this subtree, and the version last
	// installed by one of them. Accessed without the page latch.
	hvSem atomic.Int64
	hvVer atomic.Uint64

	// seq is creation order, used as the deterministic total order pages
	// sort by during commit-phase write-latch acquisition (see record.seq).
	seq uint64
}

func newPage[K cmp.Ordered, V any](degree, height int, isRoot bool, seq uint64) *page[K, V] {
	p := &page[K, V]{
		isRoot: isRoot,
		height: height,
		degree: degree,
		seq:    seq,
	}
	if height == 1 {
		p.records = make([]*record[K, V], 0, degree)
	} else {
		p.children = make([]*page[K, V], 0, degree+1)
	}
	return p
}

func (p *page[K, V]) isLeaf() bool {
	return p.height == 1
}

// NumKeys returns the current key count. Caller must hold the page latch.
func (p *page[K, V]) NumKeys() int {
	return len(p.keys)
}

// SearchKey returns the index of the largest key <= k, or -1 if every key
// exceeds k. Caller must hold the page latch.
func (p *page[K, V]) SearchKey(k K) int {
	// sort.Search finds the first index for which keys[i] > k; one less is
	// the largest index with keys[i] <= k (or -1 if none).
	idx := sort.Search(len(p.keys), func(i int) bool {
		return p.keys[i] > k
	})
	return idx - 1
}

// leafInject finds-or-creates the record for key at the position given by
// idx == SearchKey(key). Caller must hold the page write latch and the page
// must be in leaf mode (height == 1) with fewer than degree keys already.
func (p *page[K, V]) leafInject(idx int, key K, seq uint64) *record[K, V] {
	if !p.isLeaf() {
		invariantViolation("leafInject called on non-leaf page")
	}
	if idx >= 0 && p.keys[idx] == key {
		return p.records[idx]
	}

	shift := idx + 1
	p.keys = insertKey(p.keys, shift, key)
	rec := newRecord[K, V](key, seq)
	p.records = insertRecord(p.records, shift, rec)
	return rec
}

// internalInject inserts key with its right child rchild immediately after
// lchild, which must already sit at children[idx+1]. Caller must hold the
// page write latch; page must be in internal mode with fewer than degree
// keys already.
func (p *page[K, V]) internalInject(idx int, key K, lchild, rchild *page[K, V]) {
	if p.isLeaf() {
		invariantViolation("internalInject called on leaf page")
	}
	if idx >= 0 && p.keys[idx] == key {
		invariantViolation("duplicate internal node key detected")
	}

	shift := idx + 1
	if p.children[shift] != lchild {
		invariantViolation("left child page does not match at injection point")
	}

	p.keys = insertKey(p.keys, shift, key)
	p.children = insertPage(p.children, shift+1, rchild)
}

func insertKey[K any](s []K, idx int, k K) []K {
	s = append(s, k)
	copy(s[idx+1:], s[idx:])
	s[idx] = k
	return s
}

func insertRecord[K cmp.Ordered, V any](s []*record[K, V], idx int, r *record[K, V]) []*record[K, V] {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = r
	return s
}

func insertPage[K cmp.Ordered, V any](s []*page[K, V], idx int, p *page[K, V]) []*page[K, V] {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = p
	return s
}
