// Package transport implements the line-delimited TCP stream server and
// outbound client: a blocking accept loop that hands each connection's
// frames to a Dispatcher, and an outbound sender that dials a fresh
// connection per message with a 5s timeout and no retry, with
// unicast/broadcast/multicast fan-out.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/distributeddb/core/pkg/ddb/internal/invoker"
	"github.com/distributeddb/core/pkg/ddb/logging"
	"github.com/distributeddb/core/pkg/ddb/cluster"
	"github.com/distributeddb/core/pkg/ddb/proto"
)

// SendTimeout bounds connect+send for a single outbound message.
const SendTimeout = 5 * time.Second

// Responder writes a single reply frame back on the connection a message
// arrived on. It is only meaningful for the client's QUERY/QUERY_RESPONSE
// round trip: peer-to-peer messages are fire-and-forget and handlers
// simply don't call it.
type Responder func(m proto.Message) error

// Dispatcher receives every validated inbound Message along with a
// Responder bound to its originating connection. The node orchestrator
// implements this; transport never interprets message contents beyond
// the communication-type envelope.
type Dispatcher interface {
	Dispatch(m proto.Message, respond Responder)
}

// Server is the blocking accept loop. One handler goroutine is spawned per
// inbound connection; handlers run concurrently with each other and with
// the accept loop itself, so Dispatch must tolerate reentrant calls.
type Server struct {
	listener net.Listener
	log      logging.Logger
	invoker  invoker.Invoker

	closing chan struct{}
}

// Listen binds addr and returns a Server that has not yet started
// accepting connections.
func Listen(addr string, log logging.Logger, inv invoker.Invoker) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Server{
		listener: listener,
		log:      log,
		invoker:  inv,
		closing:  make(chan struct{}),
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until Close is called. Every accepted
// connection is handed to its own goroutine via the invoker.
func (s *Server) Serve(dispatch Dispatcher) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
				s.log.Errorf("transport: accept: %v", err)
				return
			}
		}
		s.invoker.Spawn(func() {
			s.handleConnection(conn, dispatch)
		})
	}
}

func (s *Server) handleConnection(conn net.Conn, dispatch Dispatcher) {
	defer conn.Close()
	reader := proto.NewFrameReader(conn)
	respond := func(m proto.Message) error {
		return proto.WriteFrame(conn, m)
	}
	for {
		frame, err := reader.Next()
		if err != nil {
			return
		}
		msg, err := proto.Decode(frame)
		if err != nil {
			s.log.Warnf("transport: dropping frame: %v", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			s.log.Warnf("transport: dropping invalid message: %v", err)
			continue
		}
		dispatch.Dispatch(msg, respond)
	}
}

// Close stops the accept loop by closing the listening socket.
func (s *Server) Close() error {
	close(s.closing)
	return s.listener.Close()
}

// Client sends messages to peers. Every send opens a fresh connection
// (no pooling) with a 5s connect+send deadline and is never retried at
// this layer.
type Client struct {
	log logging.Logger
}

// NewClient builds an outbound Client.
func NewClient(log logging.Logger) *Client {
	return &Client{log: log}
}

// sendOne opens a connection to target, writes m, and closes the
// connection. It reports success as a bool, swallowing the error into a
// log line instead of propagating it: failures here are logged and
// never retried.
func (c *Client) sendOne(target cluster.Descriptor, m proto.Message) bool {
	conn, err := net.DialTimeout("tcp", target.Endpoint(), SendTimeout)
	if err != nil {
		c.log.Errorf("transport: dial %s: %v", target.Endpoint(), err)
		return false
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(SendTimeout))
	if err := proto.WriteFrame(conn, m); err != nil {
		c.log.Errorf("transport: send to %s: %v", target.Endpoint(), err)
		return false
	}
	return true
}

// Unicast sends m to the single node identified by target, returning
// whether it was delivered.
func (c *Client) Unicast(target cluster.Descriptor, m proto.Message) bool {
	return c.sendOne(target, m)
}

// Broadcast sends m to every node in all except selfID, returning the
// count delivered.
func (c *Client) Broadcast(all []cluster.Descriptor, selfID int, m proto.Message) int {
	delivered := 0
	for _, n := range all {
		if n.ID == selfID {
			continue
		}
		if c.sendOne(n, m) {
			delivered++
		}
	}
	return delivered
}

// Multicast sends m to every node in all whose ID is in targets, returning
// the count delivered.
func (c *Client) Multicast(all []cluster.Descriptor, targets []int, m proto.Message) int {
	want := make(map[int]bool, len(targets))
	for _, id := range targets {
		want[id] = true
	}
	delivered := 0
	for _, n := range all {
		if want[n.ID] {
			if c.sendOne(n, m) {
				delivered++
			}
		}
	}
	return delivered
}

// Send dispatches m according to its CommunicationType against the given
// peer view. selfID excludes the sender from a BROADCAST.
func (c *Client) Send(all []cluster.Descriptor, selfID int, m proto.Message) int {
	switch m.CommunicationType {
	case proto.Unicast:
		if len(m.TargetNodes) != 1 {
			return 0
		}
		targetID := m.TargetNodes[0]
		for _, n := range all {
			if n.ID == targetID {
				if c.sendOne(n, m) {
					return 1
				}
				return 0
			}
		}
		return 0
	case proto.Broadcast:
		return c.Broadcast(all, selfID, m)
	case proto.Multicast:
		return c.Multicast(all, m.TargetNodes, m)
	default:
		return 0
	}
}
