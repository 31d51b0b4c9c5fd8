// Package election implements the Bully coordinator-election algorithm:
// the highest-id ACTIVE node always becomes coordinator, elections are
// triggered by a timed-out coordinator or a cold start, and a losing node
// defers to whichever higher node answers first.
package election

import (
	"sync"
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
)

// Timeout is how long a node waits, after multicasting ELECTION to every
// higher-id peer, before deciding no one answered and becoming coordinator
// itself.
const Timeout = 5 * time.Second

// Sender is the subset of transport.Client the Coordinator needs, kept
// narrow so tests can substitute a recorder without standing up a socket.
type Sender interface {
	Send(all []cluster.Descriptor, selfID int, m proto.Message) int
}

// Coordinator tracks this node's view of cluster leadership and drives the
// Bully protocol. A single mutex guards every field below it, matching the
// teacher's one-lock-per-component idiom; elections are rare enough that a
// coarse lock never shows up as contention.
type Coordinator struct {
	selfID   int
	registry *cluster.Registry
	sender   Sender
	log      logging.Logger
	invoker  invoker.Invoker

	mu                sync.Mutex
	currentCoordinator int
	isCoordinator      bool
	electionInProgress bool
	responses          map[int]bool
}

// New builds a Coordinator for selfID.
func New(selfID int, registry *cluster.Registry, sender Sender, log logging.Logger, inv invoker.Invoker) *Coordinator {
	return &Coordinator{
		selfID:             selfID,
		registry:           registry,
		sender:             sender,
		log:                log,
		invoker:            inv,
		currentCoordinator: 0,
		responses:          make(map[int]bool),
	}
}

// IsCoordinator reports whether this node currently believes itself to be
// the coordinator.
func (c *Coordinator) IsCoordinator() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCoordinator
}

// CoordinatorID returns the id of the node this node currently believes is
// coordinator, or 0 if none is known yet.
func (c *Coordinator) CoordinatorID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentCoordinator
}

// StartElection begins a Bully election, idempotently: a second call while
// one is already in flight is a no-op.
func (c *Coordinator) StartElection() {
	c.mu.Lock()
	if c.electionInProgress {
		c.log.Info("election already in progress, ignoring")
		c.mu.Unlock()
		return
	}
	c.electionInProgress = true
	c.responses = make(map[int]bool)
	c.mu.Unlock()

	c.log.Infof("node %d starting election", c.selfID)

	higher := higherActive(c.registry.Active(0), c.selfID)
	if len(higher) == 0 {
		c.becomeCoordinator()
		return
	}

	targets := make([]int, len(higher))
	for i, n := range higher {
		targets[i] = n.ID
	}
	msg := proto.Message{
		MessageType:       proto.Election,
		SenderID:          c.selfID,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Multicast,
		TargetNodes:       targets,
	}
	c.sender.Send(c.registry.Snapshot(), c.selfID, msg)

	c.invoker.Spawn(c.waitForResponses)
}

func higherActive(active []cluster.Descriptor, selfID int) []cluster.Descriptor {
	var out []cluster.Descriptor
	for _, n := range active {
		if n.ID > selfID {
			out = append(out, n)
		}
	}
	return out
}

func (c *Coordinator) waitForResponses() {
	time.Sleep(Timeout)

	c.mu.Lock()
	gotResponses := len(c.responses) > 0
	if gotResponses {
		c.log.Infof("received %d election responses, waiting for coordinator", len(c.responses))
		c.electionInProgress = false
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.becomeCoordinator()
}

func (c *Coordinator) becomeCoordinator() {
	c.mu.Lock()
	c.isCoordinator = true
	c.currentCoordinator = c.selfID
	c.electionInProgress = false
	c.mu.Unlock()

	c.log.Infof("node %d is the new coordinator", c.selfID)

	msg := proto.Message{
		MessageType:       proto.Coordinator,
		SenderID:          c.selfID,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
	}
	c.sender.Send(c.registry.Snapshot(), c.selfID, msg)
}

// HandleElection responds to an ELECTION message from sender. If sender's
// id is lower than ours we out-rank it: reply with an ELECTION_ACK and
// start our own election (we may still lose to a third, higher node, but
// the sender must defer). If sender outranks us we stay silent and let it
// proceed.
func (c *Coordinator) HandleElection(senderID int) {
	if senderID < c.selfID {
		c.log.Infof("received election from node %d (lower than %d)", senderID, c.selfID)

		ack := proto.Message{
			MessageType:       proto.ElectionAck,
			SenderID:          c.selfID,
			Timestamp:         time.Now().Format(time.RFC3339),
			CommunicationType: proto.Unicast,
			TargetNodes:       []int{senderID},
		}
		c.sender.Send(c.registry.Snapshot(), c.selfID, ack)

		c.StartElection()
		return
	}
	c.log.Infof("received election from node %d (higher than %d) - ignoring", senderID, c.selfID)
}

// HandleElectionAck records that senderID answered our election.
func (c *Coordinator) HandleElectionAck(senderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[senderID] = true
	c.log.Infof("election ack received from node %d", senderID)
}

// HandleCoordinatorAnnouncement processes a COORDINATOR broadcast from
// senderID. An announcement is accepted whenever the announcer outranks
// us OR we have no election of our own in flight; a lower-id announcement
// arriving mid-election is logged and otherwise ignored, trusting the
// heartbeat/health-check loop to start a fresh election if that
// announcement was spurious.
func (c *Coordinator) HandleCoordinatorAnnouncement(senderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if senderID >= c.selfID || !c.electionInProgress {
		c.currentCoordinator = senderID
		c.isCoordinator = senderID == c.selfID
		c.electionInProgress = false
		c.log.Infof("node %d is the new coordinator", senderID)
		return
	}
	c.log.Warnf("node %d announced coordination but has a lower id - election in progress", senderID)
}

// CheckCoordinatorAlive reports whether the believed coordinator is still
// ACTIVE in the registry (or is this node itself).
func (c *Coordinator) CheckCoordinatorAlive() bool {
	c.mu.Lock()
	current := c.currentCoordinator
	isSelf := c.isCoordinator
	c.mu.Unlock()

	if current == 0 {
		return false
	}
	if isSelf {
		return true
	}

	d, ok := c.registry.Get(current)
	if ok && d.Status == cluster.StatusActive {
		return true
	}
	c.log.Warnf("coordinator %d is not active", current)
	return false
}
