package garner

import "sync/atomic"

// counter hands out the monotonically increasing creation-order numbers
// stamped on every page and record (see record.seq).
type counter struct {
	n atomic.Uint64
}

func (c *counter) next() uint64 {
	return c.n.Add(1)
}
