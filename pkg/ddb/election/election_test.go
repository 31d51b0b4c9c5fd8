package election

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

func (s *recordingSender) last() proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func registryOf(selfID int, ids ...int) *cluster.Registry {
	var descriptors []cluster.Descriptor
	for _, id := range ids {
		descriptors = append(descriptors, cluster.Descriptor{ID: id, Status: cluster.StatusActive})
	}
	return cluster.NewRegistry(selfID, descriptors)
}

func TestStartElectionBecomesCoordinatorWhenHighestID(t *testing.T) {
	registry := registryOf(3, 1, 2, 3)
	sender := &recordingSender{}
	c := New(3, registry, sender, logging.NewDefaultLogger("test"), invoker.New())

	c.StartElection()

	require.True(t, c.IsCoordinator())
	require.Equal(t, 3, c.CoordinatorID())
	require.Equal(t, proto.Coordinator, sender.last().MessageType)
}

func TestStartElectionMulticastsToHigherNodesOnly(t *testing.T) {
	registry := registryOf(1, 1, 2, 3)
	sender := &recordingSender{}
	c := New(1, registry, sender, logging.NewDefaultLogger("test"), invoker.New())

	c.StartElection()

	msg := sender.last()
	require.Equal(t, proto.Election, msg.MessageType)
	require.Equal(t, proto.Multicast, msg.CommunicationType)
	require.ElementsMatch(t, []int{2, 3}, msg.TargetNodes)
}

func TestStartElectionIsIdempotentWhileInFlight(t *testing.T) {
	registry := registryOf(1, 1, 2, 3)
	sender := &recordingSender{}
	inv := invoker.New()
	c := New(1, registry, sender, logging.NewDefaultLogger("test"), inv)

	c.StartElection()
	before := len(sender.sent)
	c.StartElection()
	require.Len(t, sender.sent, before)

	c.mu.Lock()
	c.electionInProgress = false
	c.mu.Unlock()
	inv.Stop()
}

func TestHandleElectionFromLowerNodeAcksAndStartsOwnElection(t *testing.T) {
	registry := registryOf(2, 1, 2, 3)
	sender := &recordingSender{}
	c := New(2, registry, sender, logging.NewDefaultLogger("test"), invoker.New())

	c.HandleElection(1)

	require.True(t, len(sender.sent) >= 2)
	require.Equal(t, proto.ElectionAck, sender.sent[0].MessageType)
	require.Equal(t, []int{1}, sender.sent[0].TargetNodes)
}

func TestHandleElectionFromHigherNodeIgnores(t *testing.T) {
	registry := registryOf(1, 1, 2, 3)
	sender := &recordingSender{}
	c := New(1, registry, sender, logging.NewDefaultLogger("test"), invoker.New())

	c.HandleElection(2)

	require.Empty(t, sender.sent)
}

func TestCoordinatorAnnouncementFromHigherIDAccepted(t *testing.T) {
	registry := registryOf(1, 1, 2, 3)
	c := New(1, registry, &recordingSender{}, logging.NewDefaultLogger("test"), invoker.New())

	c.HandleCoordinatorAnnouncement(3)

	require.Equal(t, 3, c.CoordinatorID())
	require.False(t, c.IsCoordinator())
}

func TestCoordinatorAnnouncementFromLowerIDDuringElectionIsIgnored(t *testing.T) {
	registry := registryOf(3, 1, 2, 3)
	c := New(3, registry, &recordingSender{}, logging.NewDefaultLogger("test"), invoker.New())

	c.mu.Lock()
	c.electionInProgress = true
	c.mu.Unlock()

	c.HandleCoordinatorAnnouncement(1)

	require.NotEqual(t, 1, c.CoordinatorID())
}

func TestCheckCoordinatorAliveReflectsRegistry(t *testing.T) {
	registry := registryOf(1, 1, 2, 3)
	c := New(1, registry, &recordingSender{}, logging.NewDefaultLogger("test"), invoker.New())

	require.False(t, c.CheckCoordinatorAlive())

	c.HandleCoordinatorAnnouncement(2)
	require.True(t, c.CheckCoordinatorAlive())

	registry.MarkInactive(2)
	require.False(t, c.CheckCoordinatorAlive())
}

func TestWaitForResponsesBecomesCoordinatorAfterTimeoutWithNoAcks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}
	registry := registryOf(1, 1, 2)
	sender := &recordingSender{}
	inv := invoker.New()
	c := New(1, registry, sender, logging.NewDefaultLogger("test"), inv)

	c.StartElection()
	time.Sleep(Timeout + 500*time.Millisecond)
	inv.Stop()

	require.True(t, c.IsCoordinator())
}
