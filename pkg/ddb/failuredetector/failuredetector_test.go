package failuredetector

import (
	"sync"
	"testing"
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []proto.Message
}

func (s *recordingSender) Send(all []cluster.Descriptor, selfID int, m proto.Message) int {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return len(all)
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeCoordinator struct {
	mu      sync.Mutex
	current int
	started int
}

func (f *fakeCoordinator) CoordinatorID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeCoordinator) StartElection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func TestHandleHeartbeatRestoresActive(t *testing.T) {
	registry := cluster.NewRegistry(1, []cluster.Descriptor{
		{ID: 2, Status: cluster.StatusInactive},
	})
	d := New(1, registry, &recordingSender{}, &fakeCoordinator{}, func() bool { return false }, logging.NewDefaultLogger("test"), invoker.New())

	d.HandleHeartbeat(2)

	descriptor, ok := registry.Get(2)
	require.True(t, ok)
	require.Equal(t, cluster.StatusActive, descriptor.Status)
}

func TestCheckHealthMarksStaleNodesInactiveAndElectsOnCoordinatorLoss(t *testing.T) {
	registry := cluster.NewRegistry(1, []cluster.Descriptor{
		{ID: 1, Status: cluster.StatusActive, LastHeartbeat: time.Now()},
		{ID: 2, Status: cluster.StatusActive, LastHeartbeat: time.Now().Add(-20 * time.Second)},
	})
	coordinator := &fakeCoordinator{current: 2}
	d := New(1, registry, &recordingSender{}, coordinator, func() bool { return false }, logging.NewDefaultLogger("test"), invoker.New())

	d.checkHealth()

	descriptor, ok := registry.Get(2)
	require.True(t, ok)
	require.Equal(t, cluster.StatusInactive, descriptor.Status)
	require.Equal(t, 1, coordinator.started)
}

func TestCheckHealthSkipsAlreadyInactiveNodes(t *testing.T) {
	registry := cluster.NewRegistry(1, []cluster.Descriptor{
		{ID: 2, Status: cluster.StatusInactive, LastHeartbeat: time.Now().Add(-20 * time.Second)},
	})
	coordinator := &fakeCoordinator{current: 2}
	d := New(1, registry, &recordingSender{}, coordinator, func() bool { return false }, logging.NewDefaultLogger("test"), invoker.New())

	d.checkHealth()

	require.Equal(t, 0, coordinator.started)
}

func TestSendHeartbeatCarriesCoordinatorFlag(t *testing.T) {
	registry := cluster.NewRegistry(1, []cluster.Descriptor{{ID: 1, Status: cluster.StatusActive}})
	sender := &recordingSender{}
	d := New(1, registry, sender, &fakeCoordinator{}, func() bool { return true }, logging.NewDefaultLogger("test"), invoker.New())

	d.sendHeartbeat()

	require.Equal(t, 1, sender.count())
	payload, ok := sender.sent[0].Data.(proto.HeartbeatPayload)
	require.True(t, ok)
	require.True(t, payload.IsCoordinator)
}
