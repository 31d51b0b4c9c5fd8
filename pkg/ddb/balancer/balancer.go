// Package balancer selects which peer should serve the next client
// query. Three strategies are supported — round-robin, least-loaded,
// and random — and load statistics are exposed for operational
// visibility.
package balancer

import (
	"math/rand"
	"sync"

	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
)

// Strategy names the node-selection policy.
type Strategy string

const (
	RoundRobin  Strategy = "round_robin"
	LeastLoaded Strategy = "least_loaded"
	Random      Strategy = "random"
)

// Statistics summarizes query load across the active cluster.
type Statistics struct {
	TotalNodes   int
	TotalQueries int64
	AvgQueries   float64
	MinQueries   int64
	MaxQueries   int64
	PerNode      map[int]int64
}

// Balancer picks a target node for each incoming query. RoundRobin state
// (currentIndex) is the only mutable field, so a single mutex is enough.
type Balancer struct {
	log logging.Logger

	mu           sync.Mutex
	currentIndex int
}

// New builds a Balancer.
func New(log logging.Logger) *Balancer {
	return &Balancer{log: log}
}

func activeExcluding(nodes []cluster.Descriptor, exclude int) []cluster.Descriptor {
	var out []cluster.Descriptor
	for _, n := range nodes {
		if n.Status == cluster.StatusActive && n.ID != exclude {
			out = append(out, n)
		}
	}
	return out
}

// SelectRoundRobin returns the next active node in rotation, excluding
// exclude if nonzero.
func (b *Balancer) SelectRoundRobin(nodes []cluster.Descriptor, exclude int) (cluster.Descriptor, bool) {
	active := activeExcluding(nodes, exclude)
	if len(active) == 0 {
		b.log.Warn("no active node available")
		return cluster.Descriptor{}, false
	}

	b.mu.Lock()
	selected := active[b.currentIndex%len(active)]
	b.currentIndex++
	b.mu.Unlock()

	b.log.Debugf("round-robin selected node %d", selected.ID)
	return selected, true
}

// SelectLeastLoaded returns the active node with the smallest QueryCount,
// excluding exclude if nonzero.
func (b *Balancer) SelectLeastLoaded(nodes []cluster.Descriptor, exclude int) (cluster.Descriptor, bool) {
	active := activeExcluding(nodes, exclude)
	if len(active) == 0 {
		b.log.Warn("no active node available")
		return cluster.Descriptor{}, false
	}

	selected := active[0]
	for _, n := range active[1:] {
		if n.QueryCount < selected.QueryCount {
			selected = n
		}
	}
	b.log.Debugf("least-loaded selected node %d (queries: %d)", selected.ID, selected.QueryCount)
	return selected, true
}

// SelectRandom returns a uniformly random active node, excluding exclude
// if nonzero.
func (b *Balancer) SelectRandom(nodes []cluster.Descriptor, exclude int) (cluster.Descriptor, bool) {
	active := activeExcluding(nodes, exclude)
	if len(active) == 0 {
		b.log.Warn("no active node available")
		return cluster.Descriptor{}, false
	}

	selected := active[rand.Intn(len(active))]
	b.log.Debugf("random selected node %d", selected.ID)
	return selected, true
}

// Select dispatches to the strategy named, defaulting to round-robin for
// an unrecognized or empty strategy, matching the Python original.
func (b *Balancer) Select(nodes []cluster.Descriptor, strategy Strategy, exclude int) (cluster.Descriptor, bool) {
	switch strategy {
	case LeastLoaded:
		return b.SelectLeastLoaded(nodes, exclude)
	case Random:
		return b.SelectRandom(nodes, exclude)
	default:
		return b.SelectRoundRobin(nodes, exclude)
	}
}

// LoadStatistics summarizes query counts across every active node in nodes.
func (b *Balancer) LoadStatistics(nodes []cluster.Descriptor) Statistics {
	active := activeExcluding(nodes, 0)
	if len(active) == 0 {
		return Statistics{PerNode: map[int]int64{}}
	}

	stats := Statistics{
		TotalNodes: len(active),
		MinQueries: active[0].QueryCount,
		MaxQueries: active[0].QueryCount,
		PerNode:    make(map[int]int64, len(active)),
	}
	for _, n := range active {
		stats.TotalQueries += n.QueryCount
		if n.QueryCount < stats.MinQueries {
			stats.MinQueries = n.QueryCount
		}
		if n.QueryCount > stats.MaxQueries {
			stats.MaxQueries = n.QueryCount
		}
		stats.PerNode[n.ID] = n.QueryCount
	}
	stats.AvgQueries = float64(stats.TotalQueries) / float64(stats.TotalNodes)
	return stats
}
