// Package failuredetector implements the heartbeat emitter and health
// checker: every node broadcasts a HEARTBEAT on a fixed interval, and a
// separate ticker periodically scans the registry for peers that have
// gone quiet, marking them INACTIVE and triggering a new election if the
// missing peer was the coordinator.
package failuredetector

import (
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
)

// HeartbeatInterval is how often this node broadcasts its own liveness.
const HeartbeatInterval = 5 * time.Second

// CheckInterval is how often the health checker scans the registry, twice
// the heartbeat interval so a single dropped heartbeat doesn't false-alarm.
const CheckInterval = 2 * HeartbeatInterval

// Timeout is how long a peer may go without a heartbeat before it is
// marked INACTIVE.
const Timeout = 15 * time.Second

// Sender is the outbound fan-out this package needs.
type Sender interface {
	Send(all []cluster.Descriptor, selfID int, m proto.Message) int
}

// Coordinator is the subset of election.Coordinator the health checker
// needs: who the current coordinator is, and how to trigger a new
// election when it disappears.
type Coordinator interface {
	CoordinatorID() int
	StartElection()
}

// Detector owns both loops. Stop via the invoker's Stop (it joins on the
// spawned goroutines once their tickers are cancelled through done).
type Detector struct {
	selfID      int
	registry    *cluster.Registry
	sender      Sender
	coordinator Coordinator
	log         logging.Logger
	invoker     invoker.Invoker

	isCoordinator func() bool

	done chan struct{}
}

// New builds a Detector. isCoordinator reports whether this node currently
// believes itself to be the coordinator, for the HEARTBEAT payload.
func New(selfID int, registry *cluster.Registry, sender Sender, coordinator Coordinator, isCoordinator func() bool, log logging.Logger, inv invoker.Invoker) *Detector {
	return &Detector{
		selfID:        selfID,
		registry:      registry,
		sender:        sender,
		coordinator:   coordinator,
		isCoordinator: isCoordinator,
		log:           log,
		invoker:       inv,
		done:          make(chan struct{}),
	}
}

// Start spawns the heartbeat loop and the health-check loop.
func (d *Detector) Start() {
	d.invoker.Spawn(d.heartbeatLoop)
	d.invoker.Spawn(d.checkLoop)
}

// Stop signals both loops to exit on their next tick.
func (d *Detector) Stop() {
	close(d.done)
}

func (d *Detector) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.sendHeartbeat()
		}
	}
}

func (d *Detector) sendHeartbeat() {
	msg := proto.Message{
		MessageType:       proto.Heartbeat,
		SenderID:          d.selfID,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
		Data:              proto.HeartbeatPayload{IsCoordinator: d.isCoordinator()},
	}
	d.sender.Send(d.registry.Snapshot(), d.selfID, msg)
}

func (d *Detector) checkLoop() {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.checkHealth()
		}
	}
}

func (d *Detector) checkHealth() {
	stale := d.registry.StaleSince(time.Now(), Timeout)
	for _, n := range stale {
		changed := d.registry.MarkInactive(n.ID)
		if !changed {
			continue
		}
		d.log.Warnf("node %d has had no heartbeat - marking INACTIVE", n.ID)

		if n.ID == d.coordinator.CoordinatorID() {
			d.log.Warnf("coordinator %d is inactive, starting election", n.ID)
			d.coordinator.StartElection()
		}
	}
}

// HandleHeartbeat records a received HEARTBEAT, restoring the sender to
// ACTIVE.
func (d *Detector) HandleHeartbeat(senderID int) {
	d.registry.MarkHeartbeat(senderID, time.Now())
}
