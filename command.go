package keel

import "time"

// Command is the tagged protocol external callers push into a worker's
// mailbox with Worker.Enqueue. Commands from a single sender are processed in
// send order and delivered at most once to the addressed item.
type Command interface {
	isCommand()
}

// Bind binds an already constructed item under its id. Double binds are
// rejected and logged.
type Bind struct {
	ID   int64
	Item WorkerItem
}

// Connect opens a nonblocking client connection driven on behalf of the item
// bound under ID, which must implement Handler.
type Connect struct {
	Addr string
	ID   int64
}

// UnbindItem unbinds the item bound under ID. Unknown ids are logged.
type UnbindItem struct {
	ID int64
}

// Schedule asks for Cmd to be enqueued after Delay. The worker forwards it to
// the engine's scheduler: its own bounded select cannot provide reliable
// self-timers.
type Schedule struct {
	Delay time.Duration
	Cmd   Command
}

// Message delivers Payload to the item bound under ID. If no such item is
// bound the sender's reply channel receives a MessageDeliveryFailed.
type Message struct {
	ID      int64
	Payload interface{}
	Reply   ReplyFunc
}

// Disconnect gracefully closes the connection bound under ID: queued bytes
// flush first, then the handler observes CauseDisconnect.
type Disconnect struct {
	ID int64
}

// Kill force-closes the connection bound under ID with CauseError(Err).
// Nothing is flushed.
type Kill struct {
	ID  int64
	Err error
}

// SwapHandler replaces the handler of the active connection bound under ID.
// The new handler takes over the old handler's id; the unbind-old, bind-new,
// re-point sequence is atomic with respect to selector events and other
// commands.
type SwapHandler struct {
	ID         int64
	NewHandler Handler
}

// RegisterServer installs an initializer for Server. The factory runs inside
// the worker so any state it creates is worker-local. The reply is
// ServerRegistered or RegistrationFailed; re-registering warns and succeeds.
type RegisterServer struct {
	Server *ServerRef
	New    InitializerFactory
	Reply  ReplyFunc
}

// UnregisterServer closes every active connection owned by Server with
// CauseTerminated, drops the initializer and runs its OnShutdown.
type UnregisterServer struct {
	Server *ServerRef
	Reply  ReplyFunc
}

// ServerShutdownRequest forwards a shutdown request to the handler of every
// connection owned by Server. Handlers choose when to close; nothing is torn
// down.
type ServerShutdownRequest struct {
	Server *ServerRef
}

// NewConnection hands a socket accepted on behalf of Server to the worker.
// ID is the engine-assigned item id for the handler the server's initializer
// will produce. Attempt counts delivery tries and is echoed back in a
// ConnectionRefused.
type NewConnection struct {
	ID      int64
	Server  *ServerRef
	Socket  AcceptedSocket
	Attempt int
}

// CheckIdleConnections triggers an immediate idle sweep. The reply is
// IdleCheckExecuted.
type CheckIdleConnections struct {
	Reply ReplyFunc
}

// SummaryRequest asks for a ConnectionSummary of the worker's active
// connections.
type SummaryRequest struct {
	Reply ReplyFunc
}

// bindNew constructs an item inside the worker, binds it, and optionally
// drives a client connect. This is how the engine's IOCommands land on a
// worker.
type bindNew struct {
	id    int64
	build func(Context) WorkerItem
	addr  string // non-empty: connect after bind
}

// handlerDied is posted by the watched-handler bridge when a handler's
// liveness token closes.
type handlerDied struct {
	id int64
}

// stopWorker shuts the worker down: all connections close with
// CauseTerminated, initializers shut down, the poller closes.
type stopWorker struct {
	reply ReplyFunc
}

func (Bind) isCommand()                  {}
func (Connect) isCommand()               {}
func (UnbindItem) isCommand()            {}
func (Schedule) isCommand()              {}
func (Message) isCommand()               {}
func (Disconnect) isCommand()            {}
func (Kill) isCommand()                  {}
func (SwapHandler) isCommand()           {}
func (RegisterServer) isCommand()        {}
func (UnregisterServer) isCommand()      {}
func (ServerShutdownRequest) isCommand() {}
func (NewConnection) isCommand()         {}
func (CheckIdleConnections) isCommand()  {}
func (SummaryRequest) isCommand()        {}
func (bindNew) isCommand()               {}
func (handlerDied) isCommand()           {}
func (stopWorker) isCommand()            {}

// IOCommand is the engine-level command surface. The engine resolves each to
// a worker and an item id before forwarding.
type IOCommand interface {
	isIOCommand()
}

// BindItem allocates an id, picks a worker and constructs the item inside it.
type BindItem struct {
	New func(Context) WorkerItem
}

// BindAndConnect is BindItem followed by a client connect to Addr. The
// factory must produce a Handler.
type BindAndConnect struct {
	Addr string
	New  func(Context) WorkerItem
}

// BindWithContext binds onto the worker named by a pre-allocated Context.
type BindWithContext struct {
	Ctx Context
	New func(Context) WorkerItem
}

func (BindItem) isIOCommand()        {}
func (BindAndConnect) isIOCommand()  {}
func (BindWithContext) isIOCommand() {}
