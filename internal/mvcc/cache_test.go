package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCachePutGetInvalidate(t *testing.T) {
	c := NewVersionCache(2, 0)
	e := LogEntry{Space: SpaceNode, LogicalID: 1, Header: VersionHeader{Begin: 1}}
	c.Put(VersionPtr(1), e)

	got, ok := c.Get(VersionPtr(1))
	require.True(t, ok)
	require.Equal(t, e, got)

	c.Invalidate(VersionPtr(1))
	_, ok = c.Get(VersionPtr(1))
	require.False(t, ok)
}

func TestVersionCacheLenAcrossShards(t *testing.T) {
	c := NewVersionCache(8, 0)
	for i := uint64(0); i < 40; i++ {
		c.Put(VersionPtr(i), LogEntry{LogicalID: i})
	}
	require.Greater(t, c.Len(), 0)
	require.LessOrEqual(t, c.Len(), 40)
}
