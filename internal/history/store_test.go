package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func TestRecordUploadAssignsIDAndTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.RecordUpload(ctx, Upload{
		URL:     "http://localhost:8081",
		Project: "reports",
		Digest:  "abc123",
		Size:    2048,
		Version: "3",
	})
	require.NoError(t, err)
	_, err = uuid.Parse(u.ID)
	assert.NoError(t, err, "id should be a uuid")
	assert.False(t, u.UploadedAt.IsZero())

	got, err := s.ListUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u, got[0])
}

func TestListUploadsNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		_, err := s.RecordUpload(ctx, Upload{URL: "http://h", Project: p, Digest: "d"})
		require.NoError(t, err)
	}

	got, err := s.ListUploads(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Project)
	assert.Equal(t, "b", got[1].Project)
}

func TestRecordExecutionRoundTripsJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.RecordExecution(ctx, Execution{
		URL: "http://h", Project: "reports", Flow: "daily", ExecID: 7,
		ConcurrentOption: "concurrent",
	})
	require.NoError(t, err)
	_, err = s.RecordExecution(ctx, Execution{
		URL: "http://h", Project: "reports", Flow: "daily", ExecID: 8,
		Jobs: []string{"load", "report"}, ConcurrentOption: "skip",
	})
	require.NoError(t, err)

	got, err := s.ListExecutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 8, got[0].ExecID)
	assert.Equal(t, []string{"load", "report"}, got[0].Jobs)
	assert.Equal(t, "skip", got[0].ConcurrentOption)
	assert.Equal(t, 7, got[1].ExecID)
	assert.Empty(t, got[1].Jobs)
	assert.True(t, got[0].SubmittedAt.After(got[1].SubmittedAt))
}

func TestSessionCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.LoadSession(ctx, "http://h", "alice")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SaveSession(ctx, "http://h", "alice", "tok-1"))
	require.NoError(t, s.SaveSession(ctx, "http://h", "alice", "tok-2"))
	require.NoError(t, s.SaveSession(ctx, "http://h", "bob", "tok-b"))

	id, err = s.LoadSession(ctx, "http://h", "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", id)

	id, err = s.LoadSession(ctx, "http://other", "alice")
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.Error(t, s.SaveSession(ctx, "", "alice", "x"))
}

func TestOpenPersistsAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(ctx, "http://h", "alice", "tok"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	id, err := s.LoadSession(ctx, "http://h", "alice")
	require.NoError(t, err)
	assert.Equal(t, "tok", id)
}
