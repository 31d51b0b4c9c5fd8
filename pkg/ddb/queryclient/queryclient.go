// Package queryclient is the thin client-side half of the query path: it
// sends a single QUERY message to a chosen node and waits for the
// matching QUERY_RESPONSE on the same connection, unlike
// transport.Client's fire-and-forget peer-to-peer sends. Grounded on
// original_source/client_app.py's send_query (connect, write, block on
// one line of response, 30s timeout).
package queryclient

import (
	"fmt"
	"net"
	"time"

	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/google/uuid"
)

// Timeout bounds the whole round trip: connect, send, and wait for the
// response line.
const Timeout = 30 * time.Second

// SendQuery issues query against target and returns the decoded result.
func SendQuery(target cluster.Descriptor, query string) (proto.QueryResultPayload, error) {
	conn, err := net.DialTimeout("tcp", target.Endpoint(), Timeout)
	if err != nil {
		return proto.QueryResultPayload{}, fmt.Errorf("queryclient: dial %s: %w", target.Endpoint(), err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(Timeout))

	msg := proto.Message{
		MessageType:       proto.Query,
		SenderID:          proto.ClientSenderID,
		TransactionID:     uuid.New().String(),
		Query:             query,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{target.ID},
	}
	if err := proto.WriteFrame(conn, msg); err != nil {
		return proto.QueryResultPayload{}, fmt.Errorf("queryclient: send: %w", err)
	}

	reader := proto.NewFrameReader(conn)
	frame, err := reader.Next()
	if err != nil {
		return proto.QueryResultPayload{}, fmt.Errorf("queryclient: await response: %w", err)
	}

	response, err := proto.Decode(frame)
	if err != nil {
		return proto.QueryResultPayload{}, fmt.Errorf("queryclient: decode response: %w", err)
	}

	var result proto.QueryResultPayload
	if err := response.DecodeData(&result); err != nil {
		return proto.QueryResultPayload{}, fmt.Errorf("queryclient: decode result payload: %w", err)
	}
	return result, nil
}
