package keel

// Handler receives the I/O events of a single connection. Every method runs
// on the owning worker's goroutine and must not block.
//
// The byte slice passed to OnBytes and the buffer passed to OnWritable are
// owned by the worker and reused across connections; they are valid only for
// the duration of the call.
type Handler interface {
	WorkerItem

	// OnConnected runs once the connection is open: immediately after an
	// accepted socket is registered, or after a client connect completes.
	OnConnected(c *Conn)

	// OnBytes delivers freshly read bytes.
	OnBytes(b []byte)

	// OnWritable runs when the socket can take bytes and the connection's
	// pending queue has drained. The handler stages outbound bytes in out.
	OnWritable(out *Buffer)

	// OnDisconnected runs exactly once when the connection closes.
	OnDisconnected(cause DisconnectCause)
}

// ShutdownRequester lets a server ask a handler to wind down at its own pace
// instead of being torn down. The handler chooses when to close.
type ShutdownRequester interface {
	ShutdownRequest()
}

// Watched exposes an external liveness token. The worker observes the token
// and force-closes the handler's connection when it is closed.
type Watched interface {
	LivenessToken() <-chan struct{}
}

// ManualUnbinder marks a handler that stays bound across error-class
// disconnects, so the client layer above can reconnect under the same id.
type ManualUnbinder interface {
	ManualUnbind() bool
}

// NopHandler implements Handler with no-ops and remembers its Context. Embed
// it and override what you need.
type NopHandler struct {
	Ctx Context
}

func (h *NopHandler) OnBind(ctx Context) { h.Ctx = ctx }

func (h *NopHandler) OnUnbind() {}

func (h *NopHandler) ReceiveMessage(payload interface{}, reply ReplyFunc) {}

func (h *NopHandler) OnConnected(*Conn) {}

func (h *NopHandler) OnBytes([]byte) {}

func (h *NopHandler) OnWritable(*Buffer) {}

func (h *NopHandler) OnDisconnected(DisconnectCause) {}
