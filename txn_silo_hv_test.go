package garner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiloHVScanCommitsWithSubtreeUntouched(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, SiloHV)
	require.NoError(t, err)
	s.Put("a", "av")
	s.Put("b", "bv")
	s.Put("c", "cv")

	txn, err := s.StartTxn()
	require.NoError(t, err)
	results := txn.Scan("a", "c")
	require.Len(t, results, 3)

	hv := txn.cxt.(*siloHVTxn[string, string])
	require.Len(t, hv.pages, 1, "all three reads fall under the single leaf that holds them")
	assert.Equal(t, 0, hv.pages[0].recordIdxStart)
	assert.Equal(t, 3, hv.pages[0].recordIdxEnd)
	assert.Zero(t, hv.pages[0].p.hvSem.Load())
	assert.Equal(t, hv.pages[0].p.hvVer.Load(), hv.pages[0].ver,
		"no writer has touched this subtree since the scan visited it")

	assert.True(t, txn.Commit())
}

func TestSiloHVSubtreePoisonAbortsOnlyForTheChangedRecord(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, SiloHV)
	require.NoError(t, err)
	s.Put("a", "av")
	s.Put("b", "bv")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	v, found := t1.Get("a")
	require.True(t, found)
	assert.Equal(t, "av", v)

	t2, err := s.StartTxn()
	require.NoError(t, err)
	t2.Put("b", "changed")
	require.True(t, t2.Commit())

	assert.True(t, t1.Commit(),
		"a Get's read falls in no page_list range, so a is validated per record, and a's own version is untouched")

	v, found, _ = s.Get("a")
	require.True(t, found)
	assert.Equal(t, "av", v)
}

// Mirrors the Silo version of this test: two Gets of the same key within
// one transaction, with a concurrent committed write landing in between,
// must latch mustAbort on the second ExecReadRecord call.
func TestSiloHVRepeatedReadOfSameKeyDetectsInterveningWrite(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, SiloHV)
	require.NoError(t, err)
	s.Put("k", "v0")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	v, found := t1.Get("k")
	require.True(t, found)
	assert.Equal(t, "v0", v)

	t2, err := s.StartTxn()
	require.NoError(t, err)
	t2.Put("k", "from-t2")
	require.True(t, t2.Commit())

	v, found = t1.Get("k")
	require.True(t, found)
	assert.Equal(t, "from-t2", v, "t1 observes t2's committed write on its second read")

	assert.True(t, t1.cxt.(*siloHVTxn[string, string]).mustAbort,
		"the second ExecReadRecord call must latch mustAbort on the version disagreement")
	assert.False(t, t1.Commit(), "t1 must abort: it read two different versions of k in the same transaction")
}

func TestSiloHVSubtreePoisonAbortsWhenTheReadRecordChanged(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, SiloHV)
	require.NoError(t, err)
	s.Put("a", "av")
	s.Put("b", "bv")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	v, found := t1.Get("a")
	require.True(t, found)
	assert.Equal(t, "av", v)

	t2, err := s.StartTxn()
	require.NoError(t, err)
	t2.Put("a", "changed")
	require.True(t, t2.Commit())

	assert.False(t, t1.Commit(), "a's own version moved under T1")

	v, found, _ = s.Get("a")
	require.True(t, found)
	assert.Equal(t, "changed", v)
}
