package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thozza/timelapser/scheduler"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(nil, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	first := scheduler.CycleRecord{
		CameraSN:  "CAM-1",
		Filename:  "shot-1.jpg",
		TakenAt:   time.Date(2018, 10, 15, 10, 34, 0, 0, time.UTC),
		Succeeded: 2,
	}
	second := scheduler.CycleRecord{
		CameraSN:  "CAM-1",
		Filename:  "shot-2.jpg",
		TakenAt:   time.Date(2018, 10, 15, 10, 34, 10, 0, time.UTC),
		Succeeded: 1,
		Failed:    1,
		Deleted:   true,
	}
	j.Record(first)
	j.Record(second)

	recs, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// newest first
	require.Equal(t, "shot-2.jpg", recs[0].Filename)
	require.Equal(t, 1, recs[0].Succeeded)
	require.Equal(t, 1, recs[0].Failed)
	require.True(t, recs[0].Deleted)
	require.Equal(t, "shot-1.jpg", recs[1].Filename)
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		j.Record(scheduler.CycleRecord{CameraSN: "CAM-1", Filename: "x.jpg", TakenAt: time.Now()})
	}

	recs, err := j.Recent(3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
}

func TestJournal_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	j, err := Open(nil, path)
	require.NoError(t, err)
	defer j.Close()

	recs, err := j.Recent(1)
	require.NoError(t, err)
	require.Empty(t, recs)
}
