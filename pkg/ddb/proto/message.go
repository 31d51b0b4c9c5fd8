// Package proto defines the wire message used between cluster peers and
// between a client and a peer, along with the checksum codec that
// validates message integrity.
package proto

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the kind of a Message.
type MessageType string

const (
	Query          MessageType = "QUERY"
	QueryResponse  MessageType = "QUERY_RESPONSE"
	Replicate      MessageType = "REPLICATE"
	ReplicateAck   MessageType = "REPLICATE_ACK"
	Heartbeat      MessageType = "HEARTBEAT"
	Election       MessageType = "ELECTION"
	Coordinator    MessageType = "COORDINATOR"
	Prepare        MessageType = "PREPARE"
	Commit         MessageType = "COMMIT"
	Abort          MessageType = "ABORT"
	ElectionAck    MessageType = "ELECTION_ACK"
	PrepareVote    MessageType = "PREPARE_VOTE"
)

// CommunicationType tags how a Message should be dispatched by the
// transport.
type CommunicationType string

const (
	Unicast   CommunicationType = "UNICAST"
	Broadcast CommunicationType = "BROADCAST"
	Multicast CommunicationType = "MULTICAST"
)

// ClientSenderID is the sentinel sender identifier used by client
// connections, which are not cluster members.
const ClientSenderID = 9999

// Message is the flat, checksum-validated protocol envelope exchanged
// between peers and between a client and a peer. Every field participates
// in the checksum (see checksum in codec.go) except Checksum itself.
type Message struct {
	MessageType        MessageType        `json:"message_type"`
	SenderID           int                `json:"sender_id"`
	TransactionID      string             `json:"transaction_id,omitempty"`
	Query              string             `json:"query,omitempty"`
	Data               interface{}        `json:"data,omitempty"`
	Checksum           string             `json:"checksum"`
	Timestamp          string             `json:"timestamp"`
	CommunicationType  CommunicationType  `json:"communication_type"`
	TargetNodes        []int              `json:"target_nodes,omitempty"`
}

// Validate enforces the cardinality invariants from the communication
// type: UNICAST carries exactly one target, MULTICAST at least one,
// BROADCAST ignores the target list entirely.
func (m Message) Validate() error {
	switch m.CommunicationType {
	case Unicast:
		if len(m.TargetNodes) != 1 {
			return fmt.Errorf("unicast message must have exactly one target, got %d", len(m.TargetNodes))
		}
	case Multicast:
		if len(m.TargetNodes) < 1 {
			return fmt.Errorf("multicast message must have at least one target, got %d", len(m.TargetNodes))
		}
	case Broadcast:
		// target list is ignored.
	default:
		return fmt.Errorf("unknown communication type %q", m.CommunicationType)
	}
	return nil
}

// HeartbeatPayload is the Data shape carried by a HEARTBEAT message.
type HeartbeatPayload struct {
	IsCoordinator bool `json:"is_coordinator"`
}

// ReplicateAckPayload is the Data shape carried by a REPLICATE_ACK message.
type ReplicateAckPayload struct {
	Success bool `json:"success"`
}

// DecodeData round-trips m.Data (already a generic map[string]interface{}
// after JSON decode) through JSON into out, a pointer to one of the
// typed *Payload structs above. Used by handlers that need typed access
// instead of interface{} assertions.
func (m Message) DecodeData(out interface{}) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("proto: marshal data: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// PrepareVotePayload is the Data shape carried by a PREPARE_VOTE message:
// a participant's unambiguous vote on a PREPARE, kept distinct from an
// ELECTION_ACK so election acknowledgements and 2PC votes never collide
// on a single overloaded ACK message type.
type PrepareVotePayload struct {
	Vote  bool   `json:"vote"`
	Error string `json:"error,omitempty"`
}

// QueryResultPayload is the Data shape carried by a QUERY_RESPONSE
// message, mirroring storage.QueryResult without importing the storage
// package from proto.
type QueryResultPayload struct {
	Success      bool                     `json:"success"`
	Rows         []map[string]interface{} `json:"data,omitempty"`
	Error        string                   `json:"error,omitempty"`
	NodeID       int                      `json:"node_id"`
	RowsAffected int64                    `json:"rows_affected"`
}
