package garner

import (
	"cmp"
	"fmt"
)

// Stats summarizes one GatherStats pass: the structural shape of the tree
// and every invariant violation, if any, discovered along the way.
type Stats struct {
	Height     int
	NumPages   int
	NumLeaves  int
	NumRecords int

	Violations []string
}

// GatherStats walks the tree depth-first, latching each page briefly in
// read mode, and checks the invariants the rest of the package assumes
// hold: keys within a page are strictly ascending, a page's highKey bounds
// every key in its subtree, the leaf chain is connected and also strictly
// ascending across page boundaries, and no page holds more keys than
// degree-1 allows. It does not crab-latch, so a concurrent writer can
// produce a spurious violation report; callers should only rely on it
// against a quiescent tree.
func (s *Store[K, V]) GatherStats() Stats {
	var st Stats
	t := s.tree
	t.root.latch.RLock()
	walkStats(t, t.root, &st)
	t.root.latch.RUnlock()
	checkLeafChain(t, &st)
	return st
}

func walkStats[K cmp.Ordered, V any](t *tree[K, V], p *page[K, V], st *Stats) {
	st.NumPages++
	if p.height > st.Height {
		st.Height = p.height
	}

	if p.NumKeys() > t.degree-1 {
		st.Violations = append(st.Violations, fmt.Sprintf("page seq=%d exceeds fanout bound: %d keys", p.seq, p.NumKeys()))
	}

	for i := 1; i < p.NumKeys(); i++ {
		if !(p.keys[i-1] < p.keys[i]) {
			st.Violations = append(st.Violations, fmt.Sprintf("page seq=%d keys not strictly ascending at index %d", p.seq, i))
		}
	}
	if p.highKey != nil && p.NumKeys() > 0 && !(p.keys[p.NumKeys()-1] < *p.highKey) {
		st.Violations = append(st.Violations, fmt.Sprintf("page seq=%d highKey does not bound its own keys", p.seq))
	}
	if p.highKey != nil {
		if p.next == nil {
			st.Violations = append(st.Violations, fmt.Sprintf("page seq=%d has a highKey but no right sibling", p.seq))
		} else if leftmost, ok := leftmostKey(p.next); ok && *p.highKey != leftmost {
			st.Violations = append(st.Violations, fmt.Sprintf("page seq=%d highKey does not equal its right sibling's leftmost key", p.seq))
		}
	}

	if p.isLeaf() {
		st.NumLeaves++
		st.NumRecords += p.NumKeys()
		return
	}

	for _, child := range p.children {
		child.latch.RLock()
		walkStats(t, child, st)
		child.latch.RUnlock()
	}
}

// leftmostKey descends p's own subtree via its leftmost child at every
// level to find the smallest key reachable under it, latching each page it
// visits in turn. ok is false for an empty page (nothing to descend into).
func leftmostKey[K cmp.Ordered, V any](p *page[K, V]) (key K, ok bool) {
	p.latch.RLock()
	for !p.isLeaf() {
		if len(p.children) == 0 {
			p.latch.RUnlock()
			return key, false
		}
		child := p.children[0]
		child.latch.RLock()
		p.latch.RUnlock()
		p = child
	}
	defer p.latch.RUnlock()
	if p.NumKeys() == 0 {
		return key, false
	}
	return p.keys[0], true
}

// checkLeafChain re-descends the left spine of the tree to find the
// leftmost leaf, then walks next pointers across the whole level verifying
// the chain is connected and keys stay strictly ascending across the page
// boundary.
func checkLeafChain[K cmp.Ordered, V any](t *tree[K, V], st *Stats) {
	t.root.latch.RLock()
	p := t.root
	for !p.isLeaf() {
		next := p.children[0]
		next.latch.RLock()
		p.latch.RUnlock()
		p = next
	}

	var lastKey K
	haveLast := false
	for p != nil {
		if p.NumKeys() > 0 {
			if haveLast && !(lastKey < p.keys[0]) {
				st.Violations = append(st.Violations, fmt.Sprintf("leaf chain not ascending across page seq=%d", p.seq))
			}
			lastKey = p.keys[p.NumKeys()-1]
			haveLast = true
		}
		next := p.next
		p.latch.RUnlock()
		if next != nil {
			next.latch.RLock()
		}
		p = next
	}
}
