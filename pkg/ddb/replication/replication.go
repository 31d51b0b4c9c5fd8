// Package replication propagates writes from the node that accepted a
// client query to every peer, and tracks acknowledgements for the
// originator so it can observe when a write has reached the whole
// cluster. Replication here is asynchronous and best-effort: the client
// response is sent before replication completes (see the node
// orchestrator), and a pending replication that never collects every
// ack is swept away after a timeout rather than retried.
package replication

import (
	"sync"
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/distributeddb/core/pkg/ddb/storage"
)

// SweepInterval is how often the cleanup sweep runs.
const SweepInterval = 60 * time.Second

// PendingTimeout is how long a replication may sit without collecting all
// its expected acks before the sweep discards it.
const PendingTimeout = 60 * time.Second

// Sender is the outbound fan-out this package needs.
type Sender interface {
	Send(all []cluster.Descriptor, selfID int, m proto.Message) int
}

type pendingReplication struct {
	query        string
	expectedAcks int
	receivedAcks int
	startedAt    time.Time
}

// Replicator is grounded on the Python Replicator: broadcast on write,
// unicast an ack back, track expected-vs-received per transaction.
type Replicator struct {
	selfID  int
	adapter storage.Adapter
	sender  Sender
	log     logging.Logger
	invoker invoker.Invoker

	mu      sync.Mutex
	pending map[string]*pendingReplication

	done chan struct{}
}

// New builds a Replicator for selfID.
func New(selfID int, adapter storage.Adapter, sender Sender, log logging.Logger, inv invoker.Invoker) *Replicator {
	return &Replicator{
		selfID:  selfID,
		adapter: adapter,
		sender:  sender,
		log:     log,
		invoker: inv,
		pending: make(map[string]*pendingReplication),
		done:    make(chan struct{}),
	}
}

// StartSweeper spawns the periodic cleanup of stale pending replications.
func (r *Replicator) StartSweeper() {
	r.invoker.Spawn(r.sweepLoop)
}

// Stop signals the sweeper to exit on its next tick.
func (r *Replicator) Stop() {
	close(r.done)
}

// ReplicateQuery broadcasts query to every peer if it is a write, recording
// a pending replication keyed by transactionID. Read-only queries are not
// replicated and this returns false immediately. The return value reports
// whether the broadcast reached at least one peer, not whether it was
// eventually acknowledged.
func (r *Replicator) ReplicateQuery(query, transactionID string, all []cluster.Descriptor) bool {
	if !storage.IsWriteQuery(query) {
		r.log.Debug("read-only query does not need replication")
		return false
	}

	r.log.Infof("starting replication of query: %.50s", query)

	msg := proto.Message{
		MessageType:       proto.Replicate,
		SenderID:          r.selfID,
		TransactionID:     transactionID,
		Query:             query,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
	}
	delivered := r.sender.Send(all, r.selfID, msg)

	r.mu.Lock()
	r.pending[transactionID] = &pendingReplication{
		query:        query,
		expectedAcks: len(all) - 1,
		startedAt:    time.Now(),
	}
	r.mu.Unlock()

	r.log.Infof("replication sent to %d nodes", delivered)
	return delivered > 0
}

// HandleReplicationRequest executes a REPLICATE message's query locally on
// behalf of its originator and reports success, so the caller can send a
// REPLICATE_ACK.
func (r *Replicator) HandleReplicationRequest(query string, senderID int) bool {
	r.log.Infof("replicating query from node %d: %.50s", senderID, query)

	result, err := r.adapter.Execute(query)
	if err != nil {
		r.log.Errorf("exception replicating query: %v", err)
		return false
	}
	if !result.Success {
		r.log.Errorf("error replicating: %s", result.Error)
		return false
	}
	r.log.Infof("replication executed successfully - %d rows affected", result.RowsAffected)
	return true
}

// SendReplicationAck unicasts a REPLICATE_ACK back to the originator.
func (r *Replicator) SendReplicationAck(transactionID string, originatorID int, success bool, all []cluster.Descriptor) {
	ack := proto.Message{
		MessageType:       proto.ReplicateAck,
		SenderID:          r.selfID,
		TransactionID:     transactionID,
		Data:              proto.ReplicateAckPayload{Success: success},
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{originatorID},
	}
	r.sender.Send(all, r.selfID, ack)
	r.log.Debugf("replication ack sent to node %d", originatorID)
}

// HandleReplicationAck records an incoming ack and reports whether every
// expected ack for transactionID has now arrived (in which case the
// pending entry is removed).
func (r *Replicator) HandleReplicationAck(transactionID string, senderID int, success bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[transactionID]
	if !ok {
		r.log.Warnf("ack received for unknown transaction: %s", transactionID)
		return false
	}

	p.receivedAcks++
	status := "failure"
	if success {
		status = "success"
	}
	r.log.Infof("replication ack from node %d (%s) - %d/%d", senderID, status, p.receivedAcks, p.expectedAcks)

	if p.receivedAcks >= p.expectedAcks {
		r.log.Infof("all replications confirmed for transaction %s", transactionID)
		delete(r.pending, transactionID)
		return true
	}
	return false
}

// PendingCount returns the number of replications still awaiting acks.
func (r *Replicator) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Replicator) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.cleanupOldReplications(PendingTimeout)
		}
	}
}

func (r *Replicator) cleanupOldReplications(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for tid, p := range r.pending {
		if now.Sub(p.startedAt) > timeout {
			r.log.Warnf("replication %s expired - received %d/%d acks", tid, p.receivedAcks, p.expectedAcks)
			delete(r.pending, tid)
		}
	}
}
