package keel

import (
	"net"
	"time"

	"github.com/meridianhft/keel/internal"
	"github.com/valyala/bytebufferpool"
)

// ConnRole distinguishes server-accepted from client-initiated connections.
// The role decides whether the handler is unbound on error-class closes.
type ConnRole uint8

const (
	ServerConn ConnRole = iota
	ClientConn
)

func (r ConnRole) String() string {
	switch r {
	case ServerConn:
		return "server"
	case ClientConn:
		return "client"
	default:
		return "role_unknown"
	}
}

// ConnState is the connection lifecycle state.
type ConnState uint8

const (
	// StateConnecting: client socket awaiting connect completion.
	StateConnecting ConnState = iota
	// StateOpen: reading and writing. Accepted sockets start here.
	StateOpen
	// StateClosing: local close requested, pending outbound bytes still
	// flushing. Reads are stopped.
	StateClosing
	// StateClosed: terminal.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "state_unknown"
	}
}

// Conn is a nonblocking socket owned by a single worker. Every active Conn is
// reachable both through the worker's connection map and through its selector
// slot's attachment; the two views stay consistent across event-loop
// iterations.
//
// All methods must be called on the owning worker's goroutine, which is where
// handler callbacks already run. Other goroutines interact through worker
// commands.
type Conn struct {
	id     int64
	worker *Worker
	fd     int
	slot   internal.Slot
	role   ConnRole
	state  ConnState

	// server owns accepted connections; nil for client connections.
	server  *ServerRef
	handler Handler

	localAddr  net.Addr
	remoteAddr net.Addr

	createdAt time.Time
	lastRead  time.Time
	lastWrite time.Time
	bytesIn   uint64
	bytesOut  uint64

	// maxIdleTime is this connection's idle ceiling. Non-positive means the
	// idle sweep never touches it.
	maxIdleTime time.Duration

	// pending holds outbound bytes waiting for a writable tick. Pooled;
	// released on close.
	pending *bytebufferpool.ByteBuffer

	// watchStop tears down the watched-handler bridge goroutine, when one
	// exists.
	watchStop chan struct{}
}

func (c *Conn) ID() int64            { return c.id }
func (c *Conn) Role() ConnRole       { return c.role }
func (c *Conn) State() ConnState     { return c.state }
func (c *Conn) Worker() *Worker      { return c.worker }
func (c *Conn) Server() *ServerRef   { return c.server }
func (c *Conn) LocalAddr() net.Addr  { return c.localAddr }
func (c *Conn) RemoteAddr() net.Addr { return c.remoteAddr }

// SetMaxIdleTime overrides the connection's idle ceiling. Non-positive
// disables idle closure.
func (c *Conn) SetMaxIdleTime(d time.Duration) {
	c.maxIdleTime = d
}

// Send queues b for transmission and arms write interest. The bytes are
// copied, so b may be reused immediately. Returns ErrConnClosed once the
// connection has closed.
func (c *Conn) Send(b []byte) error {
	if c.state == StateClosed {
		return ErrConnClosed
	}
	if len(b) == 0 {
		return nil
	}
	if c.pending == nil {
		c.pending = bytebufferpool.Get()
	}
	c.pending.Write(b) //nolint:errcheck // pool buffer writes cannot fail
	return c.worker.armWrite(c)
}

// Close requests a graceful close: queued bytes flush first, then the
// connection is unregistered with CauseDisconnect. Must run on the worker
// goroutine; use the Disconnect command from outside.
func (c *Conn) Close() {
	c.worker.disconnect(c)
}

func (c *Conn) hasPending() bool {
	return c.pending != nil && c.pending.Len() > 0
}

func (c *Conn) lastActivity() time.Time {
	last := c.createdAt
	if c.lastRead.After(last) {
		last = c.lastRead
	}
	if c.lastWrite.After(last) {
		last = c.lastWrite
	}
	return last
}

func (c *Conn) isTimedOut(now time.Time) bool {
	if c.maxIdleTime <= 0 {
		return false
	}
	return now.Sub(c.lastActivity()) > c.maxIdleTime
}

func (c *Conn) snapshot(now time.Time) ConnSnapshot {
	var addr string
	if c.remoteAddr != nil {
		addr = c.remoteAddr.String()
	}
	return ConnSnapshot{
		ID:       c.id,
		Addr:     addr,
		Role:     c.role,
		State:    c.state,
		BytesIn:  c.bytesIn,
		BytesOut: c.bytesOut,
		Age:      now.Sub(c.createdAt),
		Idle:     now.Sub(c.lastActivity()),
	}
}

// releasePending returns the pooled buffer. Only safe once the connection is
// closed.
func (c *Conn) releasePending() {
	if c.pending != nil {
		bytebufferpool.Put(c.pending)
		c.pending = nil
	}
}
