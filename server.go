package keel

import "net"

// NotifyFunc receives outbound notifications. Implementations must not block:
// workers call it from their loop goroutine.
type NotifyFunc func(Notification)

// ServerRef identifies a registered server across the engine's workers and
// carries the channel its notifications are pushed on. Identity is pointer
// identity: registries key on *ServerRef.
type ServerRef struct {
	name   string
	notify NotifyFunc
}

func NewServerRef(name string, notify NotifyFunc) *ServerRef {
	return &ServerRef{name: name, notify: notify}
}

func (s *ServerRef) Name() string {
	return s.name
}

func (s *ServerRef) Notify(n Notification) {
	if s.notify != nil {
		s.notify(n)
	}
}

// ServerContext is handed to an initializer's OnConnect for each accepted
// socket, before the connection and handler exist.
type ServerContext struct {
	Server     *ServerRef
	Worker     *Worker
	ID         int64
	RemoteAddr net.Addr
}

// InitializerFactory constructs a server's per-worker initializer. It runs
// inside the worker, so any state it creates is worker-local.
type InitializerFactory func(w *Worker) (Initializer, error)

// Initializer produces a handler for every socket a server's acceptor hands
// to the worker. One initializer lives per (server, worker) pair, from
// RegisterServer until UnregisterServer or worker stop.
type Initializer interface {
	// OnConnect produces the handler for a newly accepted socket. Returning
	// an error or a nil handler refuses the connection: the socket is closed
	// and the server notified.
	OnConnect(ctx ServerContext) (Handler, error)

	// OnShutdown runs once when the server is unregistered or the worker
	// stops.
	OnShutdown()

	// ReceiveMessage delivers a payload addressed to the server itself.
	ReceiveMessage(payload interface{}, reply ReplyFunc)
}
