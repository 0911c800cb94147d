package lock

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	l, err := Acquire(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(b)))
}

func TestAcquireConflictsWhileHeld(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)

	_, err = Acquire(dir)
	require.ErrorIs(t, err, errdefs.ErrConflict)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))

	require.NoError(t, first.Release())
	second, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	l, err := Acquire(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.NoError(t, l.Release())

	var nilLock *EditLock
	assert.NoError(t, nilLock.Release())
}

func TestAcquireRejectsEmptyDir(t *testing.T) {
	t.Parallel()
	_, err := Acquire("")
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}
