package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolManagerNewPageThenFetch(t *testing.T) {
	pm := NewPoolManager(2)

	pid, data, err := pm.NewPage()
	require.NoError(t, err)
	require.Len(t, data, PageSize)

	data[0] = 0x42
	require.NoError(t, pm.UnpinPage(pid, true))

	fetched, err := pm.FetchPage(pid)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), fetched[0])
}

func TestPoolManagerOutOfMemoryWhenAllPinned(t *testing.T) {
	pm := NewPoolManager(1)

	_, _, err := pm.NewPage()
	require.NoError(t, err)

	_, _, err = pm.NewPage()
	require.Error(t, err)
}

func TestPoolManagerEvictsUnpinnedFrame(t *testing.T) {
	pm := NewPoolManager(1)

	pid1, _, err := pm.NewPage()
	require.NoError(t, err)
	require.NoError(t, pm.UnpinPage(pid1, false))

	pid2, _, err := pm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, pid1, pid2)

	_, err = pm.FetchPage(pid1)
	require.Error(t, err, "page 1 was evicted to make room for page 2")
}

func TestPoolManagerDeletePageRejectsPinned(t *testing.T) {
	pm := NewPoolManager(1)
	pid, _, err := pm.NewPage()
	require.NoError(t, err)

	require.Error(t, pm.DeletePage(pid))

	require.NoError(t, pm.UnpinPage(pid, false))
	require.NoError(t, pm.DeletePage(pid))
}
