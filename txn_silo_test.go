package garner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiloReadWriteConflict(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
	require.NoError(t, err)
	s.Put("k", "v0")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	v, found := t1.Get("k")
	require.True(t, found)
	assert.Equal(t, "v0", v)

	t2, err := s.StartTxn()
	require.NoError(t, err)
	t2.Put("k", "x")
	require.True(t, t2.Commit())

	assert.False(t, t1.Commit(), "T1 must abort: its read of k is stale")

	v, found, _ = s.Get("k")
	require.True(t, found)
	assert.Equal(t, "x", v)
}

// Two transactions that each blindly Put the same key with no preceding
// Read never conflict in Silo -- neither recorded a version to invalidate,
// so commit order alone decides which value stands, and both commits
// succeed.
func TestSiloOverlappingBlindWritesBothCommit(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
	require.NoError(t, err)
	s.Put("k", "v0")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	t2, err := s.StartTxn()
	require.NoError(t, err)

	t1.Put("k", "from-t1")
	t2.Put("k", "from-t2")

	require.True(t, t1.Commit())
	require.True(t, t2.Commit())

	v, found, _ := s.Get("k")
	require.True(t, found)
	assert.Equal(t, "from-t2", v, "the later commit's value stands")
}

// A read of one key still invalidates the transaction even when its write
// set targets an unrelated key: validation is per record read, regardless
// of what else the transaction buffered for write.
func TestSiloReadInvalidatesUnrelatedWrite(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
	require.NoError(t, err)
	s.Put("k1", "v0")
	s.Put("k2", "v0")

	t1, err := s.StartTxn()
	require.NoError(t, err)
	_, found := t1.Get("k1")
	require.True(t, found)
	t1.Put("k2", "from-t1")

	t2, err := s.StartTxn()
	require.NoError(t, err)
	t2.Put("k1", "from-t2")
	require.True(t, t2.Commit())

	assert.False(t, t1.Commit(), "T1's read of k1 is stale even though its write targets k2")

	v, found, _ := s.Get("k2")
	require.True(t, found)
	assert.Equal(t, "v0", v, "the aborted transaction's write to k2 must never have applied")
}

// Two Gets of the same key within one transaction, with a concurrent
// committed write to that key landing in between, must disagree on the
// version observed -- the second ExecReadRecord call sets mustAbort
// immediately, before commit ever reaches phase-2 validation.
func TestSiloRepeatedReadOfSameKeyDetectsInterveningWrite(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
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

	assert.True(t, t1.cxt.(*siloTxn[string, string]).mustAbort,
		"the second ExecReadRecord call must latch mustAbort on the version disagreement")
	assert.False(t, t1.Commit(), "t1 must abort: it read two different versions of k in the same transaction")
}

func TestSiloReadYourOwnWrite(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
	require.NoError(t, err)

	txn, err := s.StartTxn()
	require.NoError(t, err)
	txn.Put("k", "v1")
	v, found := txn.Get("k")
	require.True(t, found)
	assert.Equal(t, "v1", v)
	require.True(t, txn.Commit())
}

func TestSiloAbortReleasesWithoutMutating(t *testing.T) {
	t.Parallel()

	s, err := Open[string, string](4, Silo)
	require.NoError(t, err)
	s.Put("k", "v0")

	reader, err := s.StartTxn()
	require.NoError(t, err)
	_, _ = reader.Get("k")

	writer, err := s.StartTxn()
	require.NoError(t, err)
	writer.Put("k", "v1")
	require.True(t, writer.Commit())

	assert.False(t, reader.Commit())

	v, found, _ := s.Get("k")
	require.True(t, found)
	assert.Equal(t, "v1", v, "the winning writer's value must stand regardless of the loser's abort")
}
