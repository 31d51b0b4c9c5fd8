package node

import (
	"fmt"
	"time"

	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/election"
	"github.com/distributeddb/core/pkg/ddb/failuredetector"
	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/distributeddb/core/pkg/ddb/replication"
	"github.com/distributeddb/core/pkg/ddb/storage"
	"github.com/distributeddb/core/pkg/ddb/transport"
	"github.com/distributeddb/core/pkg/ddb/txn"
)

// BootstrapDelay is how long a freshly-started node waits before calling
// its first election, giving every peer's listener time to come up,
// matching node_server.py's `time.sleep(2)` before `start_election`.
const BootstrapDelay = 2 * time.Second

// DecisionTimeout bounds how long a 2PC coordinator waits for every
// participant's vote before aborting unilaterally. Failing to collect
// all votes within this window results in an ABORT.
const DecisionTimeout = 5 * time.Second

// Orchestrator wires every coordination subsystem together and implements
// transport.Dispatcher, routing each validated inbound Message to the
// right subsystem by its MessageType — the Go equivalent of
// node_server.py's handle_message dispatch table.
type Orchestrator struct {
	selfID   int
	registry *cluster.Registry
	adapter  storage.Adapter
	log      logging.Logger
	invoker  invoker.Invoker

	server      *transport.Server
	client      *transport.Client
	coordinator *election.Coordinator
	detector    *failuredetector.Detector
	replicator  *replication.Replicator
	transactor  *txn.Manager
}

// New builds an Orchestrator for selfID, wiring every subsystem against
// the shared registry, storage adapter, and outbound client.
func New(selfID int, registry *cluster.Registry, adapter storage.Adapter, log logging.Logger, inv invoker.Invoker) *Orchestrator {
	client := transport.NewClient(log)
	coordinator := election.New(selfID, registry, client, log, inv)
	detector := failuredetector.New(selfID, registry, client, coordinator, coordinator.IsCoordinator, log, inv)
	replicator := replication.New(selfID, adapter, client, log, inv)
	transactor := txn.New(selfID, adapter, client, log)

	return &Orchestrator{
		selfID:      selfID,
		registry:    registry,
		adapter:     adapter,
		log:         log,
		invoker:     inv,
		client:      client,
		coordinator: coordinator,
		detector:    detector,
		replicator:  replicator,
		transactor:  transactor,
	}
}

// Start opens the storage adapter, binds the listener, and spawns the
// heartbeat/health-check loops and the replication sweeper, then — after
// BootstrapDelay — triggers the node's first election.
func (o *Orchestrator) Start(addr string) error {
	if err := o.adapter.Connect(); err != nil {
		return fmt.Errorf("node: connect storage: %w", err)
	}

	server, err := transport.Listen(addr, o.log, o.invoker)
	if err != nil {
		return fmt.Errorf("node: listen %s: %w", addr, err)
	}
	o.server = server
	o.invoker.Spawn(func() { o.server.Serve(o) })

	o.detector.Start()
	o.replicator.StartSweeper()
	o.transactor.StartSweeper(o.invoker)

	o.invoker.Spawn(func() {
		time.Sleep(BootstrapDelay)
		o.coordinator.StartElection()
	})

	o.log.Infof("node %d active", o.selfID)
	return nil
}

// Stop closes the listener, stops the background loops, and closes the
// storage adapter.
func (o *Orchestrator) Stop() error {
	o.log.Info("stopping node")
	if o.server != nil {
		o.server.Close()
	}
	o.detector.Stop()
	o.replicator.Stop()
	o.transactor.Stop()
	if err := o.adapter.Close(); err != nil {
		return err
	}
	o.log.Info("node stopped")
	return nil
}

// Dispatch implements transport.Dispatcher, routing m to the subsystem
// that owns its MessageType.
func (o *Orchestrator) Dispatch(m proto.Message, respond transport.Responder) {
	switch m.MessageType {
	case proto.Heartbeat:
		o.detector.HandleHeartbeat(m.SenderID)
	case proto.Query:
		o.handleQuery(m, respond)
	case proto.Prepare:
		o.handlePrepare(m)
	case proto.Commit:
		o.handleDecision(m, true)
	case proto.Abort:
		o.handleDecision(m, false)
	case proto.PrepareVote:
		o.handlePrepareVote(m)
	case proto.Replicate:
		o.handleReplicate(m)
	case proto.ReplicateAck:
		o.handleReplicateAck(m)
	case proto.Election:
		o.coordinator.HandleElection(m.SenderID)
	case proto.ElectionAck:
		o.coordinator.HandleElectionAck(m.SenderID)
	case proto.Coordinator:
		o.coordinator.HandleCoordinatorAnnouncement(m.SenderID)
	default:
		o.log.Warnf("unknown message type: %s", m.MessageType)
	}
}

// handleQuery executes a client QUERY locally, flushes the response back
// on the same connection before kicking off replication, so a client
// never waits on replication to see its own write succeed.
func (o *Orchestrator) handleQuery(m proto.Message, respond transport.Responder) {
	o.log.Infof("executing local query: %.50s", m.Query)

	result, err := o.adapter.Execute(m.Query)
	o.registry.IncrementQueryCount(o.selfID)

	payload := proto.QueryResultPayload{NodeID: o.selfID}
	if err != nil {
		payload.Success = false
		payload.Error = err.Error()
	} else {
		payload.Success = result.Success
		payload.Error = result.Error
		payload.RowsAffected = result.RowsAffected
		if result.Rows != nil {
			payload.Rows = make([]map[string]interface{}, len(result.Rows))
			for i, row := range result.Rows {
				payload.Rows[i] = row
			}
		}
	}

	response := proto.Message{
		MessageType:       proto.QueryResponse,
		SenderID:          o.selfID,
		TransactionID:     m.TransactionID,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{m.SenderID},
		Data:              payload,
	}
	if respond != nil {
		if err := respond(response); err != nil {
			o.log.Errorf("failed to respond to query: %v", err)
		}
	}

	if err == nil && payload.Success && storage.IsWriteQuery(m.Query) {
		o.replicator.ReplicateQuery(m.Query, m.TransactionID, o.registry.Snapshot())
	}
}

func (o *Orchestrator) handlePrepare(m proto.Message) {
	vote, voteErr := o.transactor.HandlePrepare(m.TransactionID, m.Query)
	o.transactor.SendVote(m.TransactionID, m.SenderID, vote, voteErr, o.registry.Snapshot())
}

func (o *Orchestrator) handleDecision(m proto.Message, commit bool) {
	if err := o.transactor.HandleDecision(commit); err != nil {
		o.log.Errorf("transaction %s decision failed: %v", m.TransactionID, err)
		return
	}
	action := "aborted"
	if commit {
		action = "committed"
	}
	o.log.Infof("transaction %s %s", m.TransactionID, action)
}

func (o *Orchestrator) handleReplicate(m proto.Message) {
	if err := o.adapter.Begin(); err != nil {
		o.log.Errorf("replication begin failed: %v", err)
		o.replicator.SendReplicationAck(m.TransactionID, m.SenderID, false, o.registry.Snapshot())
		return
	}

	success := o.replicator.HandleReplicationRequest(m.Query, m.SenderID)
	if success {
		if err := o.adapter.Commit(); err != nil {
			o.log.Errorf("replication commit failed: %v", err)
			success = false
		}
	} else {
		o.adapter.Rollback()
	}

	o.replicator.SendReplicationAck(m.TransactionID, m.SenderID, success, o.registry.Snapshot())
}

func (o *Orchestrator) handleReplicateAck(m proto.Message) {
	var payload proto.ReplicateAckPayload
	if err := m.DecodeData(&payload); err != nil {
		o.log.Warnf("malformed replicate ack: %v", err)
		return
	}
	o.replicator.HandleReplicationAck(m.TransactionID, m.SenderID, payload.Success)
}

func (o *Orchestrator) handlePrepareVote(m proto.Message) {
	var payload proto.PrepareVotePayload
	if err := m.DecodeData(&payload); err != nil {
		o.log.Warnf("malformed prepare vote: %v", err)
		return
	}
	o.transactor.ReceiveVote(m.TransactionID, m.SenderID, payload.Vote)
	if o.transactor.VotesComplete(m.TransactionID) {
		o.decideTransaction(m.TransactionID)
	}
}

// ExecuteTransactionalWrite runs sql through the full two-phase-commit
// protocol across every ACTIVE peer, for callers that need cross-node
// atomicity instead of the default client path's asynchronous
// replication. It is a separate entry point, not part of the default
// write path.
func (o *Orchestrator) ExecuteTransactionalWrite(sql string) (string, error) {
	peers := o.registry.Active(o.selfID)
	participants := make([]int, 0, len(peers)+1)
	participants = append(participants, o.selfID)
	for _, p := range peers {
		participants = append(participants, p.ID)
	}

	transactionID := o.transactor.CreateTransaction(sql, participants)

	vote, voteErr := o.transactor.HandlePrepare(transactionID, sql)
	if voteErr != "" {
		o.log.Warnf("transaction %s local prepare vote: %s", transactionID, voteErr)
	}
	o.transactor.ReceiveVote(transactionID, o.selfID, vote)

	if err := o.transactor.BeginPrepare(transactionID, o.registry.Snapshot()); err != nil {
		return transactionID, err
	}

	if o.transactor.VotesComplete(transactionID) {
		o.decideTransaction(transactionID)
		return transactionID, nil
	}

	o.invoker.Spawn(func() {
		time.Sleep(DecisionTimeout)
		o.decideTransactionIfPending(transactionID)
	})

	return transactionID, nil
}

// decideTransaction broadcasts the coordinator's decision and applies it
// to the coordinator's own locally-opened transaction.
func (o *Orchestrator) decideTransaction(transactionID string) {
	commit := o.transactor.CanCommit(transactionID)
	if err := o.transactor.BeginDecision(transactionID, commit, o.registry.Snapshot()); err != nil {
		o.log.Errorf("begin decision for transaction %s: %v", transactionID, err)
		return
	}
	if err := o.transactor.HandleDecision(commit); err != nil {
		o.log.Errorf("apply local decision for transaction %s: %v", transactionID, err)
	}
	o.transactor.FinalizeTransaction(transactionID)
}

// decideTransactionIfPending aborts transactionID if it is still awaiting
// votes after DecisionTimeout.
func (o *Orchestrator) decideTransactionIfPending(transactionID string) {
	status, ok := o.transactor.GetStatus(transactionID)
	if !ok || status != txn.StatusPreparing {
		return
	}
	o.log.Warnf("transaction %s decision timeout - aborting", transactionID)
	if err := o.transactor.BeginDecision(transactionID, false, o.registry.Snapshot()); err != nil {
		o.log.Errorf("begin decision for transaction %s: %v", transactionID, err)
		return
	}
	if err := o.transactor.HandleDecision(false); err != nil {
		o.log.Errorf("apply local decision for transaction %s: %v", transactionID, err)
	}
	o.transactor.FinalizeTransaction(transactionID)
}
