package transport

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingDispatcher struct {
	mu       sync.Mutex
	received []proto.Message
	done     chan struct{}
}

func newRecordingDispatcher(expect int) *recordingDispatcher {
	return &recordingDispatcher{done: make(chan struct{}, expect)}
}

func (d *recordingDispatcher) Dispatch(m proto.Message, respond Responder) {
	d.mu.Lock()
	d.received = append(d.received, m)
	d.mu.Unlock()
	d.done <- struct{}{}
}

func (d *recordingDispatcher) waitFor(n int, timeout time.Duration) bool {
	for i := 0; i < n; i++ {
		select {
		case <-d.done:
		case <-time.After(timeout):
			return false
		}
	}
	return true
}

func startServer(t *testing.T, inv invoker.Invoker) (*Server, *recordingDispatcher) {
	t.Helper()
	log := logging.NewDefaultLogger("test")
	srv, err := Listen("127.0.0.1:0", log, inv)
	require.NoError(t, err)
	dispatcher := newRecordingDispatcher(8)
	inv.Spawn(func() { srv.Serve(dispatcher) })
	return srv, dispatcher
}

func descriptorFor(addr string) cluster.Descriptor {
	parts := strings.Split(addr, ":")
	port, _ := strconv.Atoi(parts[len(parts)-1])
	host := strings.Join(parts[:len(parts)-1], ":")
	if host == "" {
		host = "127.0.0.1"
	}
	return cluster.Descriptor{Host: host, Port: port}
}

func TestUnicastDeliversToServer(t *testing.T) {
	inv := invoker.New()
	srv, dispatcher := startServer(t, inv)
	defer func() {
		srv.Close()
		inv.Stop()
	}()

	client := NewClient(logging.NewDefaultLogger("test"))
	target := descriptorFor(srv.Addr().String())
	target.ID = 1

	msg := proto.Message{
		MessageType:       proto.Heartbeat,
		SenderID:          2,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{1},
	}
	ok := client.Unicast(target, msg)
	require.True(t, ok)
	require.True(t, dispatcher.waitFor(1, time.Second))
	require.Equal(t, proto.Heartbeat, dispatcher.received[0].MessageType)
}

func TestBroadcastExcludesSelf(t *testing.T) {
	inv := invoker.New()
	srv, dispatcher := startServer(t, inv)
	defer func() {
		srv.Close()
		inv.Stop()
	}()

	client := NewClient(logging.NewDefaultLogger("test"))
	self := descriptorFor(srv.Addr().String())
	self.ID = 1
	other := descriptorFor(srv.Addr().String())
	other.ID = 2

	msg := proto.Message{
		MessageType:       proto.Heartbeat,
		SenderID:          1,
		Timestamp:         time.Now().Format(time.RFC3339),
		CommunicationType: proto.Broadcast,
	}
	delivered := client.Broadcast([]cluster.Descriptor{self, other}, 1, msg)
	require.Equal(t, 1, delivered)
	require.True(t, dispatcher.waitFor(1, time.Second))
}

func TestDialTimeoutReportsFailureWithoutRetry(t *testing.T) {
	client := NewClient(logging.NewDefaultLogger("test"))
	unreachable := cluster.Descriptor{ID: 99, Host: "127.0.0.1", Port: 1}
	ok := client.Unicast(unreachable, proto.Message{
		MessageType:       proto.Heartbeat,
		CommunicationType: proto.Unicast,
		TargetNodes:       []int{99},
	})
	require.False(t, ok)
}
