package balancer

import (
	"testing"

	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/stretchr/testify/require"
)

func activeNodes() []cluster.Descriptor {
	return []cluster.Descriptor{
		{ID: 1, Status: cluster.StatusActive, QueryCount: 5},
		{ID: 2, Status: cluster.StatusActive, QueryCount: 1},
		{ID: 3, Status: cluster.StatusInactive, QueryCount: 0},
	}
}

func TestSelectRoundRobinCyclesThroughActiveNodes(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	nodes := activeNodes()

	first, ok := b.SelectRoundRobin(nodes, 0)
	require.True(t, ok)
	second, ok := b.SelectRoundRobin(nodes, 0)
	require.True(t, ok)
	third, ok := b.SelectRoundRobin(nodes, 0)
	require.True(t, ok)

	require.Equal(t, first.ID, third.ID)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSelectRoundRobinExcludesInactiveAndExcludedNodes(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	selected, ok := b.SelectRoundRobin(activeNodes(), 2)
	require.True(t, ok)
	require.Equal(t, 1, selected.ID)
}

func TestSelectRoundRobinReturnsFalseWhenNoneActive(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	_, ok := b.SelectRoundRobin([]cluster.Descriptor{{ID: 1, Status: cluster.StatusInactive}}, 0)
	require.False(t, ok)
}

func TestSelectLeastLoadedPicksSmallestQueryCount(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	selected, ok := b.SelectLeastLoaded(activeNodes(), 0)
	require.True(t, ok)
	require.Equal(t, 2, selected.ID)
}

func TestSelectRandomOnlyReturnsActiveNodes(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	for i := 0; i < 20; i++ {
		selected, ok := b.SelectRandom(activeNodes(), 0)
		require.True(t, ok)
		require.NotEqual(t, 3, selected.ID)
	}
}

func TestSelectDispatchesByStrategyDefaultingToRoundRobin(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	_, ok := b.Select(activeNodes(), Strategy("unknown"), 0)
	require.True(t, ok)

	selected, ok := b.Select(activeNodes(), LeastLoaded, 0)
	require.True(t, ok)
	require.Equal(t, 2, selected.ID)
}

func TestLoadStatisticsSummarizesActiveNodes(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	stats := b.LoadStatistics(activeNodes())

	require.Equal(t, 2, stats.TotalNodes)
	require.EqualValues(t, 6, stats.TotalQueries)
	require.EqualValues(t, 1, stats.MinQueries)
	require.EqualValues(t, 5, stats.MaxQueries)
	require.Equal(t, 3.0, stats.AvgQueries)
}

func TestLoadStatisticsEmptyWhenNoActiveNodes(t *testing.T) {
	b := New(logging.NewDefaultLogger("test"))
	stats := b.LoadStatistics([]cluster.Descriptor{{ID: 1, Status: cluster.StatusInactive}})
	require.Equal(t, 0, stats.TotalNodes)
}
