package keel

import "time"

// Notification is an outbound message from a worker or the engine: a reply
// delivered on a command's ReplyFunc or a push to a server's notify channel.
type Notification interface {
	isNotification()
}

// WorkerReady is emitted once per worker when its loop starts.
type WorkerReady struct {
	Worker *Worker
}

// ServerRegistered acknowledges a RegisterServer command.
type ServerRegistered struct {
	Server *ServerRef
	Worker *Worker
}

// RegistrationFailed reports that a server's initializer factory failed; the
// registry is untouched.
type RegistrationFailed struct {
	Server *ServerRef
	Worker *Worker
	Err    error
}

// ServerUnregistered acknowledges an UnregisterServer command.
type ServerUnregistered struct {
	Server *ServerRef
	Worker *Worker
}

// IdleCheckExecuted acknowledges a CheckIdleConnections command.
type IdleCheckExecuted struct {
	Worker *Worker
}

// ConnectionRefused tells a server its acceptor delivered a socket the worker
// cannot accept. The socket is left open unless the initializer itself
// failed, so the server may retry on another worker.
type ConnectionRefused struct {
	Socket  AcceptedSocket
	Attempt int
}

// MessageDeliveryFailed is the reply for a Message addressed to an id with no
// bound item.
type MessageDeliveryFailed struct {
	ID      int64
	Payload interface{}
}

// ConnSnapshot is a point-in-time view of one active connection.
type ConnSnapshot struct {
	ID       int64
	Addr     string
	Role     ConnRole
	State    ConnState
	BytesIn  uint64
	BytesOut uint64
	Age      time.Duration
	Idle     time.Duration
}

// LoopStats summarizes the worker's event-loop tick latency.
type LoopStats struct {
	Ticks   int64
	TickP50 time.Duration
	TickP99 time.Duration
	TickMax time.Duration
}

// ConnectionSummary is the reply to a SummaryRequest.
type ConnectionSummary struct {
	Worker      *Worker
	Connections []ConnSnapshot
	Loop        LoopStats
}

func (WorkerReady) isNotification()           {}
func (ServerRegistered) isNotification()      {}
func (RegistrationFailed) isNotification()    {}
func (ServerUnregistered) isNotification()    {}
func (IdleCheckExecuted) isNotification()     {}
func (ConnectionRefused) isNotification()     {}
func (MessageDeliveryFailed) isNotification() {}
func (ConnectionSummary) isNotification()     {}
