package mvcc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReserveAndCommitFlow(t *testing.T) {
	ct := NewCommitTable(0)
	require.NoError(t, ct.Reserve(1))
	require.NoError(t, ct.Reserve(2))
	require.Equal(t, CommitID(1), ct.OldestVisible())

	require.NoError(t, ct.MarkCommitted(1))
	ct.ReleaseCommitted(1)
	require.Equal(t, CommitID(2), ct.OldestVisible())

	require.NoError(t, ct.MarkCommitted(2))
	ct.ReleaseCommitted(2)
	require.Equal(t, CommitID(2), ct.OldestVisible())
}

func TestReserveRejectsNonIncreasingOrZero(t *testing.T) {
	ct := NewCommitTable(10)
	require.Error(t, ct.Reserve(5))
	require.NoError(t, ct.Reserve(11))
	require.Error(t, ct.Reserve(11))
	require.Error(t, ct.Reserve(0))
	require.Error(t, ct.MarkCommitted(5))
}

func TestMarkCommittedTwiceFails(t *testing.T) {
	ct := NewCommitTable(0)
	require.NoError(t, ct.Reserve(1))
	require.NoError(t, ct.MarkCommitted(1))
	require.Error(t, ct.MarkCommitted(1))
}

func TestReaderFloorPinsOldestVisible(t *testing.T) {
	ct := NewCommitTable(0)
	require.NoError(t, ct.Reserve(1))
	require.NoError(t, ct.MarkCommitted(1))
	ct.ReleaseCommitted(1)

	tok, err := ct.RegisterReader(0)
	require.NoError(t, err)
	require.NoError(t, ct.Reserve(2))
	require.NoError(t, ct.MarkCommitted(2))
	ct.ReleaseCommitted(2)
	// Reader still pins commit 0, below the floor, so oldest_visible stays
	// at the floor-pinned snapshot rather than advancing to 2.
	require.Equal(t, CommitID(0), ct.OldestVisible())

	ct.ReleaseReader(tok)
	require.Equal(t, CommitID(2), ct.OldestVisible())
}

func TestRegisterReaderUnknownSnapshotFails(t *testing.T) {
	ct := NewCommitTable(0)
	_, err := ct.RegisterReader(99)
	require.Error(t, err)
}

func TestVacuumHorizonBoundedByOldestVisible(t *testing.T) {
	ct := NewCommitTable(0)
	require.NoError(t, ct.Reserve(1))
	require.NoError(t, ct.MarkCommitted(1))

	tok, err := ct.RegisterReader(1)
	require.NoError(t, err)

	horizon := ct.VacuumHorizon(0)
	require.LessOrEqual(t, horizon, CommitID(1))

	ct.ReleaseReader(tok)
}

func TestSnapshotReportsActiveReaders(t *testing.T) {
	ct := NewCommitTable(0)
	require.NoError(t, ct.Reserve(1))
	require.NoError(t, ct.MarkCommitted(1))
	tok, err := ct.RegisterReader(1)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	snap := ct.Snapshot()
	require.EqualValues(t, 1, snap.Readers.Active)
	require.NotNil(t, snap.Readers.OldestSnapshot)
	require.Equal(t, CommitID(1), *snap.Readers.OldestSnapshot)

	ct.ReleaseReader(tok)
	snap = ct.Snapshot()
	require.EqualValues(t, 0, snap.Readers.Active)
}
