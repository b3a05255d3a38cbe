package garner

import (
	"cmp"
)

// tree is the concurrent B+-tree index. It owns the root page (allocated
// once and never replaced, which is what lets every goroutine use it as a
// synchronization-free entry point) and the fanout bound every page is held
// to.
type tree[K cmp.Ordered, V any] struct {
	degree int
	root   *page[K, V]

	logger Logger

	// seqCounter assigns the deterministic creation-order number recorded
	// on every page and record, used by the OCC protocols to sort
	// write-latch acquisition and so avoid deadlock (see record.seq).
	seqCounter counter
}

func newTree[K cmp.Ordered, V any](degree int, logger Logger) *tree[K, V] {
	t := &tree[K, V]{degree: degree, logger: logger}
	t.root = newPage[K, V](degree, 1, true, t.seqCounter.next())
	return t
}

func (t *tree[K, V]) isConcurrencySafe(p *page[K, V]) bool {
	return p.NumKeys() < t.degree-1
}

// readCrab latch-crabs from the root down to the leaf covering key in shared
// mode. Only the returned leaf's read latch is held on return; the caller is
// responsible for calling the read-traversal hook on it and releasing it.
func (t *tree[K, V]) readCrab(key K, txn txnCxt[K, V]) *page[K, V] {
	p := t.root
	p.latch.RLock()

	if p.height == 1 {
		return p
	}

	for {
		idx := p.SearchKey(key)
		child := p.children[idx+1]
		if child == nil {
			invariantViolation("nil child pointer during read traversal")
		}

		child.latch.RLock()
		if txn != nil {
			txn.ExecReadTraverseNode(p)
		}
		p.latch.RUnlock()

		if child.height == 1 {
			return child
		}
		p = child
	}
}

// writeCrab latch-crabs from the root down to the leaf covering key in
// exclusive mode, releasing ancestors early once a concurrency-safe
// descendant is reached. It returns the full root-to-leaf path and the
// suffix of that path still write-latched on return (root-to-leaf order,
// always ending at the leaf).
func (t *tree[K, V]) writeCrab(key K, txn txnCxt[K, V]) (path []*page[K, V], held []*page[K, V]) {
	p := t.root
	p.latch.Lock()
	held = append(held, p)
	path = append(path, p)

	if p.height == 1 {
		return path, held
	}

	for {
		idx := p.SearchKey(key)
		child := p.children[idx+1]
		if child == nil {
			invariantViolation("nil child pointer during write traversal")
		}

		child.latch.Lock()
		if t.isConcurrencySafe(child) {
			for _, ancestor := range held {
				if txn != nil {
					txn.ExecWriteTraverseNode(ancestor, ancestor.height)
				}
				ancestor.latch.Unlock()
			}
			held = held[:0]
		}
		held = append(held, child)
		path = append(path, child)

		if child.height == 1 {
			return path, held
		}
		p = child
	}
}

// splitNonRoot splits a non-root page in place: page keeps its left half
// and a fresh right sibling receives the right half. It returns the new
// sibling and the key promoted to the parent.
func (t *tree[K, V]) splitNonRoot(p *page[K, V]) (sibling *page[K, V], sep K) {
	m := p.NumKeys() / 2
	sibling = newPage[K, V](t.degree, p.height, false, t.seqCounter.next())

	if p.isLeaf() {
		sep = p.keys[m]

		sibling.keys = append(sibling.keys, p.keys[m:]...)
		sibling.records = append(sibling.records, p.records[m:]...)
		p.keys = p.keys[:m]
		p.records = p.records[:m]
	} else {
		sep = p.keys[m]

		sibling.keys = append(sibling.keys, p.keys[m+1:]...)
		sibling.children = append(sibling.children, p.children[m+1:]...)
		p.keys = p.keys[:m]
		p.children = p.children[:m+1]
	}

	sibling.next = p.next
	sibling.highKey = p.highKey
	p.next = sibling
	sepCopy := sep
	p.highKey = &sepCopy

	return sibling, sep
}

// splitRoot splits the root in place: the root itself is never replaced
// (its pointer is a stable entry point for every caller); instead two fresh
// children are allocated, the root's content is redistributed between them,
// and the root is rewritten to hold a single separator and the two new
// children, with its height incremented.
func (t *tree[K, V]) splitRoot(root *page[K, V]) (left, right *page[K, V], sep K) {
	m := root.NumKeys() / 2
	height := root.height

	left = newPage[K, V](t.degree, height, false, t.seqCounter.next())
	right = newPage[K, V](t.degree, height, false, t.seqCounter.next())

	if height == 1 {
		left.keys = append(left.keys, root.keys[:m]...)
		left.records = append(left.records, root.records[:m]...)
		right.keys = append(right.keys, root.keys[m:]...)
		right.records = append(right.records, root.records[m:]...)
		sep = right.keys[0]
	} else {
		left.keys = append(left.keys, root.keys[:m]...)
		left.children = append(left.children, root.children[:m+1]...)
		right.keys = append(right.keys, root.keys[m+1:]...)
		right.children = append(right.children, root.children[m+1:]...)
		sep = root.keys[m]
	}

	left.next = right
	sepCopy := sep
	left.highKey = &sepCopy
	right.highKey = nil

	root.keys = []K{sep}
	root.records = nil
	root.children = []*page[K, V]{left, right}
	root.height = height + 1

	return left, right, sep
}

// split splits path[idx], cascading upward through ancestors that overflow
// as a result, and returns the page at that level which now covers
// triggerKey (the key whose insertion caused the overflow). path[idx] and
// every ancestor the cascade reaches (path[idx-1] receives the separator,
// and splits in turn if it overflows) may be mutated in place (never
// replaced by a different pointer -- new siblings are always
// fresh pages, so every pointer a caller already holds into path/held
// remains valid after split returns).
func (t *tree[K, V]) split(path []*page[K, V], idx int, triggerKey K) *page[K, V] {
	p := path[idx]

	if p.isRoot {
		left, right, sep := t.splitRoot(p)
		t.logger.Info("root split", "height", p.height, "seq", p.seq)
		if triggerKey < sep {
			return left
		}
		return right
	}

	parent := path[idx-1]
	sibling, sep := t.splitNonRoot(p)
	t.logger.Info("page split", "seq", p.seq, "sibling_seq", sibling.seq, "height", p.height)

	pidx := parent.SearchKey(sep)
	parent.internalInject(pidx, sep, p, sibling)

	if parent.NumKeys() >= t.degree {
		t.split(path, idx-1, triggerKey)
	}

	if triggerKey < sep {
		return p
	}
	return sibling
}

// Put writes key/value through txn. txn == nil means the NoProtocol path:
// the record's own write latch is acquired and the value stored directly,
// with no hook invoked.
func (t *tree[K, V]) Put(key K, value V, txn txnCxt[K, V]) {
	if txn != nil {
		txn.ExecEnterPut()
		defer txn.ExecLeavePut()
	}

	path, held := t.writeCrab(key, txn)
	leaf := held[len(held)-1]

	idx := leaf.SearchKey(key)
	rec := leaf.leafInject(idx, key, t.seqCounter.next())

	if leaf.NumKeys() >= t.degree {
		t.split(path, len(path)-1, key)
	}

	for _, p := range held {
		if txn != nil {
			txn.ExecWriteTraverseNode(p, p.height)
		}
	}

	if txn == nil {
		rec.latch.Lock()
		rec.install(value, rec.version+1)
		rec.latch.Unlock()
	} else {
		txn.ExecWriteRecord(rec, value)
	}

	for _, p := range held {
		p.latch.Unlock()
	}
}

// Get reads key through txn. Returns found=false if the key is absent, or
// if the protocol reports the record as an invisible phantom.
func (t *tree[K, V]) Get(key K, txn txnCxt[K, V]) (value V, found bool) {
	if txn != nil {
		txn.ExecEnterGet()
		defer txn.ExecLeaveGet()
	}

	leaf := t.readCrab(key, txn)

	idx := leaf.SearchKey(key)
	if idx < 0 || leaf.keys[idx] != key {
		leaf.latch.RUnlock()
		return value, false
	}
	rec := leaf.records[idx]

	if txn != nil {
		txn.ExecReadTraverseNode(leaf)
	}
	leaf.latch.RUnlock()

	if txn == nil {
		rec.latch.RLock()
		value = rec.value
		valid := rec.valid
		rec.latch.RUnlock()
		return value, valid
	}
	return txn.ExecReadRecord(rec)
}

// Pair is one key/value result row returned by Scan.
type Pair[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Scan returns every (key, value) in the inclusive range [lkey, rkey], in
// ascending key order. Scans only check the version stability of records
// they actually encounter; a concurrent insert into the scanned range is
// not detected.
func (t *tree[K, V]) Scan(lkey, rkey K, txn txnCxt[K, V]) []Pair[K, V] {
	if lkey > rkey {
		return nil
	}

	if txn != nil {
		txn.ExecEnterScan()
		defer txn.ExecLeaveScan()
	}

	var results []Pair[K, V]

	leaf := t.readCrab(lkey, txn)
	first := true

	for {
		if leaf.NumKeys() == 0 {
			leaf.latch.RUnlock()
			return results
		}

		start := 0
		if first {
			idx := leaf.SearchKey(lkey)
			if idx >= 0 && leaf.keys[idx] == lkey {
				start = idx
			} else {
				start = idx + 1
			}
			first = false
		}

		rightBound := leaf.highKey == nil || rkey < *leaf.highKey
		end := leaf.NumKeys()
		if rightBound {
			end = leaf.SearchKey(rkey) + 1
		}

		for i := start; i < end; i++ {
			rec := leaf.records[i]
			if txn == nil {
				rec.latch.RLock()
				v, valid := rec.value, rec.valid
				rec.latch.RUnlock()
				if valid {
					results = append(results, Pair[K, V]{Key: leaf.keys[i], Value: v})
				}
				continue
			}
			v, ok := txn.ExecReadRecord(rec)
			if ok {
				results = append(results, Pair[K, V]{Key: leaf.keys[i], Value: v})
			}
		}

		if rightBound {
			if txn != nil {
				txn.ExecReadTraverseNode(leaf)
			}
			leaf.latch.RUnlock()
			return results
		}

		next := leaf.next
		if next == nil {
			if txn != nil {
				txn.ExecReadTraverseNode(leaf)
			}
			leaf.latch.RUnlock()
			return results
		}

		next.latch.RLock()
		if txn != nil {
			txn.ExecReadTraverseNode(leaf)
		}
		leaf.latch.RUnlock()
		leaf = next
	}
}

// Delete is not yet implemented: the fanout lower bound needed to merge
// underflowing pages is deliberately left unspecified (see DESIGN.md).
func (t *tree[K, V]) Delete(key K, txn txnCxt[K, V]) (found bool, err error) {
	if txn != nil {
		txn.ExecEnterDelete()
		defer txn.ExecLeaveDelete()
	}
	return false, ErrNotImplemented
}
