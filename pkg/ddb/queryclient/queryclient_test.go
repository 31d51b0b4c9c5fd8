package queryclient

import (
	"net"
	"strconv"
	"testing"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/distributeddb/core/pkg/ddb/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoDispatcher answers every QUERY on the same connection it arrived
// on, exactly the shape SendQuery expects.
type echoDispatcher struct{}

func (echoDispatcher) Dispatch(m proto.Message, respond transport.Responder) {
	if m.MessageType != proto.Query {
		return
	}
	respond(proto.Message{
		MessageType:       proto.QueryResponse,
		SenderID:          1,
		TransactionID:     m.TransactionID,
		Timestamp:         m.Timestamp,
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{proto.ClientSenderID},
		Data: proto.QueryResultPayload{
			Success:      true,
			NodeID:       1,
			RowsAffected: 1,
		},
	})
}

func TestSendQueryRoundTrip(t *testing.T) {
	inv := invoker.New()
	srv, err := transport.Listen("127.0.0.1:0", logging.NewDefaultLogger("test"), inv)
	require.NoError(t, err)
	inv.Spawn(func() { srv.Serve(echoDispatcher{}) })
	defer func() {
		srv.Close()
		inv.Stop()
	}()

	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	target := cluster.Descriptor{ID: 1, Host: host, Port: port}

	result, err := SendQuery(target, "SELECT 1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.EqualValues(t, 1, result.NodeID)
	require.EqualValues(t, 1, result.RowsAffected)
}

func TestSendQueryDialFailureReturnsError(t *testing.T) {
	unreachable := cluster.Descriptor{ID: 99, Host: "127.0.0.1", Port: 1}
	_, err := SendQuery(unreachable, "SELECT 1")
	require.Error(t, err)
}

