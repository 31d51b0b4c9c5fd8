// Package txn implements distributed transactions over Two-Phase Commit:
// a coordinator broadcasts PREPARE, collects one vote per participant,
// decides COMMIT only if every vote was true, and broadcasts the
// decision; a participant opens a local transaction on PREPARE without
// committing it, and finalizes on the coordinator's COMMIT or ABORT.
package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/distributeddb/core/pkg/ddb/storage"
	"github.com/google/uuid"
)

// Status is a transaction's lifecycle state.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusCommitted Status = "COMMITTED"
	StatusAborted   Status = "ABORTED"
)

// CleanupTimeout is not used to time out an in-flight transaction —
// unlike replication, a 2PC transaction is never silently abandoned, it
// always reaches an explicit decision — it is instead the interval on
// which the background sweeper calls CleanupDecided, finalizing any
// decided transaction a caller forgot to.
const CleanupTimeout = 5 * time.Minute

// Transaction is one in-flight or decided distributed transaction.
type Transaction struct {
	TransactionID string
	Query         string
	InitiatorNode int
	Participants  []int
	Status        Status
	Votes         map[int]bool
	DecidedAt     time.Time
}

// Sender is the outbound fan-out this package needs.
type Sender interface {
	Send(all []cluster.Descriptor, selfID int, m proto.Message) int
}

// Manager tracks every transaction this node is coordinating or
// participating in. A single mutex guards the map, matching the
// heartbeat/election components' coarse-lock idiom.
type Manager struct {
	selfID  int
	adapter storage.Adapter
	sender  Sender
	log     logging.Logger

	mu           sync.Mutex
	transactions map[string]*Transaction

	done chan struct{}
}

// New builds a Manager for selfID.
func New(selfID int, adapter storage.Adapter, sender Sender, log logging.Logger) *Manager {
	return &Manager{
		selfID:       selfID,
		adapter:      adapter,
		sender:       sender,
		log:          log,
		transactions: make(map[string]*Transaction),
		done:         make(chan struct{}),
	}
}

// StartSweeper spawns the periodic cleanup of decided transactions via
// inv, so the caller's own goroutine-lifecycle invoker joins it on Stop.
func (m *Manager) StartSweeper(inv invoker.Invoker) {
	inv.Spawn(m.sweepLoop)
}

// Stop signals the sweeper to exit on its next tick.
func (m *Manager) Stop() {
	close(m.done)
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(CleanupTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.CleanupDecided()
		}
	}
}

// CreateTransaction registers a new distributed transaction and returns
// its id.
func (m *Manager) CreateTransaction(query string, participants []int) string {
	id := uuid.New().String()

	m.mu.Lock()
	m.transactions[id] = &Transaction{
		TransactionID: id,
		Query:         query,
		InitiatorNode: m.selfID,
		Participants:  participants,
		Status:        StatusPreparing,
		Votes:         make(map[int]bool),
	}
	m.mu.Unlock()

	m.log.Infof("transaction %s created for query: %.50s", id, query)
	return id
}

// BeginPrepare broadcasts PREPARE to every participant of transactionID,
// the coordinator's first 2PC phase.
func (m *Manager) BeginPrepare(transactionID string, all []cluster.Descriptor) error {
	m.mu.Lock()
	t, ok := m.transactions[transactionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("txn: transaction %s not found", transactionID)
	}

	msg := proto.Message{
		MessageType:       proto.Prepare,
		SenderID:          m.selfID,
		TransactionID:     transactionID,
		Query:             t.Query,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
	}
	m.sender.Send(all, m.selfID, msg)
	m.log.Infof("PREPARE phase started for transaction %s", transactionID)
	return nil
}

// HandlePrepare is the participant side of phase one: open a local
// transaction and execute the query inside it, voting on the outcome.
// The transaction is deliberately left open either way — even a failed
// vote doesn't roll back here, since phase two's ABORT is what closes it
// (matching the original's handle_abort, which always rolls back
// unconditionally rather than trusting phase one to have already done
// so).
func (m *Manager) HandlePrepare(transactionID, query string) (vote bool, voteErr string) {
	if err := m.adapter.Begin(); err != nil {
		return false, err.Error()
	}
	result, err := m.adapter.Execute(query)
	if err != nil {
		return false, err.Error()
	}
	if !result.Success {
		return false, result.Error
	}
	return true, ""
}

// SendVote unicasts a PREPARE_VOTE back to the coordinator.
func (m *Manager) SendVote(transactionID string, coordinatorID int, vote bool, voteErr string, all []cluster.Descriptor) {
	msg := proto.Message{
		MessageType:       proto.PrepareVote,
		SenderID:          m.selfID,
		TransactionID:     transactionID,
		Data:              proto.PrepareVotePayload{Vote: vote, Error: voteErr},
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{coordinatorID},
	}
	m.sender.Send(all, m.selfID, msg)
}

// ReceiveVote records a participant's vote as the coordinator.
func (m *Manager) ReceiveVote(transactionID string, senderID int, vote bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		m.log.Warnf("vote received for unknown transaction %s", transactionID)
		return
	}
	t.Votes[senderID] = vote
	decision := "ABORT"
	if vote {
		decision = "COMMIT"
	}
	m.log.Infof("vote received from node %d for transaction %s: %s", senderID, transactionID, decision)
}

// CanCommit reports whether every participant has voted, and if so,
// whether every vote was true.
func (m *Manager) CanCommit(transactionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return false
	}
	if len(t.Votes) != len(t.Participants) {
		return false
	}
	for _, v := range t.Votes {
		if !v {
			return false
		}
	}
	return true
}

// VotesComplete reports whether every participant has voted, regardless
// of the outcome — callers use this to decide when it is safe to call
// CanCommit and broadcast a decision.
func (m *Manager) VotesComplete(transactionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return false
	}
	return len(t.Votes) == len(t.Participants)
}

// BeginDecision broadcasts the coordinator's COMMIT or ABORT decision,
// the second 2PC phase, and records it on the transaction.
func (m *Manager) BeginDecision(transactionID string, commit bool, all []cluster.Descriptor) error {
	m.mu.Lock()
	t, ok := m.transactions[transactionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("txn: transaction %s not found", transactionID)
	}
	if commit {
		t.Status = StatusCommitted
	} else {
		t.Status = StatusAborted
	}
	m.mu.Unlock()

	messageType := proto.Abort
	action := "ABORT"
	if commit {
		messageType = proto.Commit
		action = "COMMIT"
	}

	msg := proto.Message{
		MessageType:       messageType,
		SenderID:          m.selfID,
		TransactionID:     transactionID,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
	}
	m.sender.Send(all, m.selfID, msg)
	m.log.Infof("%s phase started for transaction %s", action, transactionID)
	return nil
}

// HandleDecision is the participant side of phase two: commit or roll
// back the transaction opened during HandlePrepare.
func (m *Manager) HandleDecision(commit bool) error {
	if commit {
		return m.adapter.Commit()
	}
	return m.adapter.Rollback()
}

// FinalizeTransaction removes transactionID from the manager.
func (m *Manager) FinalizeTransaction(transactionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return
	}
	delete(m.transactions, transactionID)
	m.log.Infof("transaction %s finalized with status: %s", transactionID, t.Status)
}

// GetStatus returns transactionID's status, if known.
func (m *Manager) GetStatus(transactionID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// CleanupDecided finalizes every transaction already in a terminal state,
// matching the original's cleanup sweep (it never times out an
// undecided transaction, only garbage-collects decided ones that a
// caller forgot to finalize).
func (m *Manager) CleanupDecided() int {
	m.mu.Lock()
	var toRemove []string
	for tid, t := range m.transactions {
		if t.Status == StatusCommitted || t.Status == StatusAborted {
			toRemove = append(toRemove, tid)
		}
	}
	m.mu.Unlock()

	for _, tid := range toRemove {
		m.FinalizeTransaction(tid)
	}
	if len(toRemove) > 0 {
		m.log.Infof("cleanup: %d transactions removed", len(toRemove))
	}
	return len(toRemove)
}
