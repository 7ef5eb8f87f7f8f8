package keel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/eapache/queue"
	"github.com/meridianhft/keel/internal"
	"github.com/meridianhft/keel/keelopts"
	"github.com/valyala/bytebufferpool"
	oerrors "go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"golang.org/x/sys/unix"
)

// WorkerID is unique within the owning engine.
type WorkerID int

// ScheduleFunc is the external scheduler Schedule commands are forwarded to.
// It must call fire after roughly delay; fire is safe to call from any
// goroutine.
type ScheduleFunc func(delay time.Duration, fire func())

// Worker is a single-threaded event loop owning a set of nonblocking socket
// connections. It alternates between bounded selector polls and mailbox
// drains; every registry, connection and handler it owns is mutated only on
// the goroutine running Run. External callers interact exclusively through
// Enqueue.
type Worker struct {
	id     WorkerID
	cfg    Config
	poller *internal.Poller

	// mailbox is the MPSC command queue. Producers append under mailboxLck
	// and wake the poller; only the loop goroutine removes.
	mailbox    *queue.Queue
	mailboxLck sync.Mutex

	// conns is the id -> active connection map. Paired with each slot's
	// attachment it forms the two views that must agree after every tick.
	conns map[int64]*Conn

	// watched holds the subset of conns whose handler exposes a liveness
	// token.
	watched map[int64]*Conn

	items *itemRegistry

	// inits maps a registered server to its worker-local initializer.
	inits map[*ServerRef]Initializer

	// readBuf is shared by every connection read; views handed to OnBytes
	// are valid only for the duration of the call.
	readBuf []byte

	// out is the shared output staging buffer handed to OnWritable.
	out *Buffer

	notify NotifyFunc
	sched  ScheduleFunc

	lastIdleSweep time.Time
	ticks         *hdrhistogram.Histogram

	stopped bool   // loop-local, set by stopWorker
	closed  uint32 // observed by Enqueue
}

func NewWorker(id WorkerID, cfg Config, notify NotifyFunc, sched ScheduleFunc) (*Worker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poller, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}

	return &Worker{
		id:      id,
		cfg:     cfg,
		poller:  poller,
		mailbox: queue.New(),
		conns:   make(map[int64]*Conn),
		watched: make(map[int64]*Conn),
		items:   newItemRegistry(),
		inits:   make(map[*ServerRef]Initializer),
		readBuf: make([]byte, cfg.ReadBufferSize),
		out:     newBuffer(cfg.OutputBufferSize),
		notify:  notify,
		sched:   sched,
		ticks:   hdrhistogram.New(1, int64(10*time.Second/time.Microsecond), 3),
	}, nil
}

func (w *Worker) ID() WorkerID { return w.id }

func (w *Worker) String() string { return fmt.Sprintf("worker-%d", w.id) }

// Enqueue pushes a command into the mailbox and wakes the loop. Safe for
// concurrent use. Commands from a single sender are processed in send order.
func (w *Worker) Enqueue(cmd Command) error {
	if atomic.LoadUint32(&w.closed) == 1 {
		return ErrWorkerClosed
	}

	w.mailboxLck.Lock()
	w.mailbox.Add(cmd)
	w.mailboxLck.Unlock()

	if err := w.poller.Wake(); err != nil {
		if atomic.LoadUint32(&w.closed) == 1 {
			return ErrWorkerClosed
		}
		return err
	}
	return nil
}

// Run drives the loop until a stopWorker command is processed. It emits
// WorkerReady before the first tick and must be called from exactly one
// goroutine, which becomes the worker's owning thread.
func (w *Worker) Run() error {
	if w.notify != nil {
		w.notify(WorkerReady{Worker: w})
	}
	w.lastIdleSweep = time.Now()

	for !w.stopped {
		if err := w.step(); err != nil {
			return err
		}
	}
	return nil
}

// Close asks the loop to shut down: every connection closes with
// CauseTerminated and every initializer's OnShutdown runs. Does not wait.
func (w *Worker) Close() error {
	err := w.Enqueue(stopWorker{})
	if err == ErrWorkerClosed {
		return nil
	}
	return err
}

// step is one loop iteration: bounded selector poll, readiness dispatch,
// mailbox drain, posted callbacks, periodic idle sweep.
func (w *Worker) step() error {
	start := time.Now()

	_, err := w.poller.Poll(int(w.cfg.SelectTimeout / time.Millisecond))
	if err != nil && err != internal.ErrTimeout {
		if w.stopped {
			return nil
		}
		return err
	}

	w.drainMailbox()
	w.poller.DispatchPosted()

	if now := time.Now(); now.Sub(w.lastIdleSweep) >= w.cfg.IdleCheckFrequency {
		w.idleSweep(now)
		w.lastIdleSweep = now
	}

	_ = w.ticks.RecordValue(time.Since(start).Microseconds())
	return nil
}

func (w *Worker) drainMailbox() {
	for n := 0; n < w.cfg.CommandBatch; n++ {
		w.mailboxLck.Lock()
		if w.mailbox.Length() == 0 {
			w.mailboxLck.Unlock()
			return
		}
		cmd := w.mailbox.Remove().(Command)
		w.mailboxLck.Unlock()

		w.process(cmd)
		if w.stopped {
			return
		}
	}
}

func (w *Worker) process(cmd Command) {
	switch cmd := cmd.(type) {
	case Bind:
		w.bindItem(cmd.ID, cmd.Item)

	case bindNew:
		item := cmd.build(Context{ID: cmd.id, Worker: w})
		if item == nil {
			logx.Error("item factory returned nothing", "worker", w.id, "id", cmd.id)
			return
		}
		if err := w.bindItem(cmd.id, item); err != nil {
			return
		}
		if cmd.addr != "" {
			w.connect(cmd.addr, cmd.id)
		}

	case Connect:
		w.connect(cmd.Addr, cmd.ID)

	case UnbindItem:
		w.unbindItem(cmd.ID, true)

	case Schedule:
		if w.sched == nil {
			logx.Error("no scheduler configured", "worker", w.id)
			return
		}
		inner := cmd.Cmd
		w.sched(cmd.Delay, func() {
			_ = w.Enqueue(inner)
		})

	case Message:
		item, ok := w.items.Get(cmd.ID)
		if !ok {
			logx.Warn("message for unknown item", "worker", w.id, "id", cmd.ID)
			if cmd.Reply != nil {
				cmd.Reply(MessageDeliveryFailed{ID: cmd.ID, Payload: cmd.Payload})
			}
			return
		}
		item.ReceiveMessage(cmd.Payload, cmd.Reply)

	case Disconnect:
		if conn, ok := w.conns[cmd.ID]; ok {
			w.disconnect(conn)
		} else {
			logx.Warn("disconnect for unknown connection", "worker", w.id, "id", cmd.ID)
		}

	case Kill:
		if conn, ok := w.conns[cmd.ID]; ok {
			w.unregisterConn(conn, CauseError(cmd.Err))
		} else {
			logx.Warn("kill for unknown connection", "worker", w.id, "id", cmd.ID)
		}

	case SwapHandler:
		w.swapHandler(cmd.ID, cmd.NewHandler)

	case RegisterServer:
		w.registerServer(cmd)

	case UnregisterServer:
		w.unregisterServer(cmd)

	case ServerShutdownRequest:
		w.serverShutdownRequest(cmd.Server)

	case NewConnection:
		w.acceptConnection(cmd)

	case CheckIdleConnections:
		now := time.Now()
		w.idleSweep(now)
		w.lastIdleSweep = now
		if cmd.Reply != nil {
			cmd.Reply(IdleCheckExecuted{Worker: w})
		}

	case SummaryRequest:
		if cmd.Reply != nil {
			cmd.Reply(w.summary())
		}

	case handlerDied:
		if conn, ok := w.conns[cmd.id]; ok {
			w.unregisterConn(conn, CauseDisconnect)
		}

	case stopWorker:
		w.shutdown()
		if cmd.reply != nil {
			cmd.reply(nil)
		}

	default:
		logx.Error("unknown command", "worker", w.id, "command", fmt.Sprintf("%T", cmd))
	}
}

// --- item lifecycle ---

func (w *Worker) bindItem(id int64, item WorkerItem) error {
	if err := w.items.Bind(id, item); err != nil {
		logx.Error("double bind rejected", "worker", w.id, "id", id)
		return err
	}
	item.OnBind(Context{ID: id, Worker: w})
	return nil
}

func (w *Worker) unbindItem(id int64, logUnknown bool) {
	item, err := w.items.Unbind(id)
	if err != nil {
		if logUnknown {
			logx.Error("unbind of unknown item", "worker", w.id, "id", id)
		}
		return
	}
	item.OnUnbind()
}

// --- client connect ---

func (w *Worker) connect(addr string, id int64) {
	item, ok := w.items.Get(id)
	if !ok {
		logx.Error("connect for unknown item", "worker", w.id, "id", id, "addr", addr)
		return
	}
	h, ok := item.(Handler)
	if !ok {
		logx.Error("bound item cannot drive a client connection", "worker", w.id, "id", id)
		return
	}

	conn := &Conn{
		id:          id,
		worker:      w,
		fd:          -1,
		role:        ClientConn,
		state:       StateConnecting,
		handler:     h,
		createdAt:   time.Now(),
		maxIdleTime: w.cfg.MaxIdleTime,
	}
	w.conns[id] = conn
	w.watchHandler(conn, h)

	fd, remote, completed, err := internal.ConnectNonblocking("tcp", addr, keelopts.NoDelay(true))
	if err != nil {
		w.unregisterConn(conn, CauseConnectFailed(err))
		return
	}

	conn.fd = fd
	conn.remoteAddr = remote
	if local, err := internal.SocketAddress(fd); err == nil {
		conn.localAddr = local
	}
	conn.slot.Fd = fd
	conn.slot.Attachment = conn
	conn.slot.Set(internal.ReadEvent, w.onReadable(conn))
	conn.slot.Set(internal.WriteEvent, w.onWritable(conn))

	if completed {
		// loopback may finish synchronously
		w.finishConnect(conn)
		return
	}

	if err := w.poller.SetWrite(&conn.slot); err != nil {
		w.unregisterConn(conn, CauseConnectFailed(err))
	}
}

func (w *Worker) finishConnect(conn *Conn) {
	if err := internal.CheckConnect(conn.fd); err != nil {
		w.unregisterConn(conn, CauseConnectFailed(err))
		return
	}

	conn.state = StateOpen
	if err := w.poller.DelWrite(&conn.slot); err != nil {
		w.unregisterConn(conn, CauseError(err))
		return
	}
	if err := w.poller.SetRead(&conn.slot); err != nil {
		w.unregisterConn(conn, CauseError(err))
		return
	}

	w.guard(conn, func() {
		conn.handler.OnConnected(conn)
	})

	if conn.state != StateClosed && conn.hasPending() {
		_ = w.armWrite(conn)
	}
}

// --- readiness handlers ---

func (w *Worker) onReadable(conn *Conn) internal.Handler {
	return func(err error) {
		if err != nil {
			w.unregisterConn(conn, CauseError(err))
			return
		}
		w.readInto(conn)
	}
}

func (w *Worker) readInto(conn *Conn) {
	n, err := unix.Read(conn.fd, w.readBuf)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return
	case err != nil:
		w.unregisterConn(conn, CauseClosed)
		return
	case n <= 0:
		// remote close
		w.unregisterConn(conn, CauseClosed)
		return
	}

	conn.lastRead = time.Now()
	conn.bytesIn += uint64(n)

	w.guard(conn, func() {
		conn.handler.OnBytes(w.readBuf[:n])
	})
}

func (w *Worker) onWritable(conn *Conn) internal.Handler {
	return func(err error) {
		if err != nil {
			w.unregisterConn(conn, CauseError(err))
			return
		}
		if conn.state == StateConnecting {
			w.finishConnect(conn)
			return
		}
		w.flush(conn)
	}
}

func (w *Worker) flush(conn *Conn) {
	// drain the carry-over queue first
	if conn.hasPending() {
		n, err := unix.Write(conn.fd, conn.pending.B)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err != nil {
			w.unregisterConn(conn, CauseError(err))
			return
		}

		conn.lastWrite = time.Now()
		conn.bytesOut += uint64(n)

		if n < conn.pending.Len() {
			rem := copy(conn.pending.B, conn.pending.B[n:])
			conn.pending.B = conn.pending.B[:rem]
			return // write interest stays armed
		}
		conn.pending.Reset()
	}

	if conn.state == StateClosing {
		w.unregisterConn(conn, CauseDisconnect)
		return
	}

	// hand the shared output buffer to the handler
	w.out.Reset()
	if !w.guard(conn, func() {
		conn.handler.OnWritable(w.out)
	}) {
		return
	}

	if w.out.Len() > 0 {
		n, err := unix.Write(conn.fd, w.out.Bytes())
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			n = 0
		} else if err != nil {
			w.unregisterConn(conn, CauseError(err))
			return
		}

		if n > 0 {
			conn.lastWrite = time.Now()
			conn.bytesOut += uint64(n)
		}

		if n < w.out.Len() {
			// unwritten bytes stay queued; write interest stays armed
			w.out.consume(n)
			if conn.pending == nil {
				conn.pending = bytebufferpool.Get()
			}
			conn.pending.Write(w.out.Bytes()) //nolint:errcheck
			return
		}
	}

	if !conn.hasPending() {
		if err := w.poller.DelWrite(&conn.slot); err != nil {
			logx.Warn("disarm write failed", "worker", w.id, "id", conn.id, "err", err)
		}
	}
}

func (w *Worker) armWrite(conn *Conn) error {
	if conn.state == StateClosed {
		return ErrConnClosed
	}
	if conn.state == StateConnecting {
		// flushed once the connect completes
		return nil
	}
	return w.poller.SetWrite(&conn.slot)
}

// guard runs a handler callback, converting a panic into an error-class
// close. Returns false if the callback panicked.
func (w *Worker) guard(conn *Conn, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error("handler panic", "worker", w.id, "id", conn.id, "panic", r)
			w.unregisterConn(conn, CauseError(fmt.Errorf("handler panic: %v", r)))
			ok = false
		}
	}()
	fn()
	return true
}

// --- disconnect discipline ---

// disconnect is the graceful path: pending outbound bytes flush before the
// close completes.
func (w *Worker) disconnect(conn *Conn) {
	switch conn.state {
	case StateClosed, StateClosing:
		return
	case StateConnecting:
		w.unregisterConn(conn, CauseDisconnect)
		return
	}

	if conn.hasPending() {
		conn.state = StateClosing
		if err := w.poller.DelRead(&conn.slot); err != nil {
			logx.Warn("disarm read failed", "worker", w.id, "id", conn.id, "err", err)
		}
		if err := w.poller.SetWrite(&conn.slot); err != nil {
			w.unregisterConn(conn, CauseError(err))
		}
		return
	}

	w.unregisterConn(conn, CauseDisconnect)
}

// unregisterConn removes the connection from every view, closes the socket
// and applies the unbind table. The handler observes OnDisconnected exactly
// once.
func (w *Worker) unregisterConn(conn *Conn, cause DisconnectCause) {
	if conn.state == StateClosed {
		return
	}

	delete(w.conns, conn.id)
	delete(w.watched, conn.id)
	if conn.watchStop != nil {
		close(conn.watchStop)
		conn.watchStop = nil
	}

	conn.state = StateClosed

	if conn.slot.Events != 0 {
		if err := w.poller.Del(&conn.slot); err != nil {
			logx.Warn("selector deregister failed", "worker", w.id, "id", conn.id, "err", err)
		}
	}
	if conn.fd >= 0 {
		if err := unix.Close(conn.fd); err != nil {
			logx.Warn("socket close failed", "worker", w.id, "id", conn.id, "err", err)
		}
		conn.fd = -1
	}
	conn.releasePending()

	h := conn.handler
	if h != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logx.Error("handler panic in OnDisconnected", "worker", w.id, "id", conn.id, "panic", r)
				}
			}()
			h.OnDisconnected(cause)
		}()
	}

	// §: server handlers always unbind; client handlers stay bound only for
	// manual-unbind handlers closed by an error-class cause.
	unbind := true
	if conn.role == ClientConn && cause.IsError() {
		if mu, ok := h.(ManualUnbinder); ok && mu.ManualUnbind() {
			unbind = false
		}
	}
	if unbind {
		w.unbindItem(conn.id, false)
	}
}

// --- handler swap ---

func (w *Worker) swapHandler(id int64, newHandler Handler) {
	conn, ok := w.conns[id]
	if !ok {
		logx.Error("swap handler: no active connection", "worker", w.id, "id", id)
		return
	}

	old, swapped := w.items.Replace(id, newHandler)
	if !swapped {
		logx.Error("swap handler: item not bound", "worker", w.id, "id", id)
		return
	}

	// unbind old, bind new, re-point; atomic because the loop owns all three
	old.OnUnbind()

	if conn.watchStop != nil {
		close(conn.watchStop)
		conn.watchStop = nil
	}
	delete(w.watched, id)

	newHandler.OnBind(Context{ID: id, Worker: w})
	conn.handler = newHandler
	w.watchHandler(conn, newHandler)
}

// --- server lifecycle ---

func (w *Worker) registerServer(cmd RegisterServer) {
	if _, ok := w.inits[cmd.Server]; ok {
		logx.Warn("server already registered", "worker", w.id, "server", cmd.Server.Name())
		if cmd.Reply != nil {
			cmd.Reply(ServerRegistered{Server: cmd.Server, Worker: w})
		}
		return
	}

	init, err := func() (init Initializer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("initializer panic: %v", r)
			}
		}()
		return cmd.New(w)
	}()
	if err == nil && init == nil {
		err = errors.New("initializer factory returned nothing")
	}
	if err != nil {
		logx.Error("server registration failed",
			"worker", w.id, "server", cmd.Server.Name(), "err", err)
		if cmd.Reply != nil {
			cmd.Reply(RegistrationFailed{Server: cmd.Server, Worker: w, Err: err})
		}
		return
	}

	w.inits[cmd.Server] = init
	if cmd.Reply != nil {
		cmd.Reply(ServerRegistered{Server: cmd.Server, Worker: w})
	}
}

func (w *Worker) unregisterServer(cmd UnregisterServer) {
	init, ok := w.inits[cmd.Server]
	if !ok {
		logx.Warn("unregister of unknown server", "worker", w.id, "server", cmd.Server.Name())
		if cmd.Reply != nil {
			cmd.Reply(ServerUnregistered{Server: cmd.Server, Worker: w})
		}
		return
	}

	for _, conn := range w.serverConns(cmd.Server) {
		w.unregisterConn(conn, CauseTerminated)
	}

	delete(w.inits, cmd.Server)
	w.runShutdown(init, cmd.Server)

	if cmd.Reply != nil {
		cmd.Reply(ServerUnregistered{Server: cmd.Server, Worker: w})
	}
}

func (w *Worker) serverShutdownRequest(server *ServerRef) {
	for _, conn := range w.serverConns(server) {
		if sr, ok := conn.handler.(ShutdownRequester); ok {
			w.guard(conn, sr.ShutdownRequest)
		}
	}
}

func (w *Worker) serverConns(server *ServerRef) []*Conn {
	var out []*Conn
	for _, conn := range w.conns {
		if conn.server == server {
			out = append(out, conn)
		}
	}
	return out
}

func (w *Worker) runShutdown(init Initializer, server *ServerRef) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error("initializer panic in OnShutdown",
				"worker", w.id, "server", server.Name(), "panic", r)
		}
	}()
	init.OnShutdown()
}

// --- accept path ---

func (w *Worker) acceptConnection(cmd NewConnection) {
	init, ok := w.inits[cmd.Server]
	if !ok {
		// socket deliberately left open: the server may retry on another
		// worker
		logx.Warn("accept onto unregistered server",
			"worker", w.id, "server", cmd.Server.Name(), "attempt", cmd.Attempt)
		cmd.Server.Notify(ConnectionRefused{Socket: cmd.Socket, Attempt: cmd.Attempt})
		return
	}

	h, err := func() (h Handler, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("initializer panic: %v", r)
			}
		}()
		return init.OnConnect(ServerContext{
			Server:     cmd.Server,
			Worker:     w,
			ID:         cmd.ID,
			RemoteAddr: cmd.Socket.RemoteAddr,
		})
	}()
	if err != nil || h == nil {
		logx.Warn("connection refused by initializer",
			"worker", w.id, "server", cmd.Server.Name(), "err", err)
		if cerr := cmd.Socket.Close(); cerr != nil {
			logx.Warn("refused socket close failed", "worker", w.id, "err", oerrors.Wrap(err, cerr))
		}
		cmd.Server.Notify(ConnectionRefused{Socket: cmd.Socket, Attempt: cmd.Attempt})
		return
	}

	conn := &Conn{
		id:          cmd.ID,
		worker:      w,
		fd:          cmd.Socket.Fd,
		role:        ServerConn,
		state:       StateOpen,
		server:      cmd.Server,
		handler:     h,
		localAddr:   cmd.Socket.LocalAddr,
		remoteAddr:  cmd.Socket.RemoteAddr,
		createdAt:   time.Now(),
		maxIdleTime: w.cfg.MaxIdleTime,
	}
	conn.slot.Fd = conn.fd
	conn.slot.Attachment = conn
	conn.slot.Set(internal.ReadEvent, w.onReadable(conn))
	conn.slot.Set(internal.WriteEvent, w.onWritable(conn))

	w.conns[cmd.ID] = conn

	if err := w.bindItem(cmd.ID, h); err != nil {
		delete(w.conns, cmd.ID)
		cmd.Socket.Close()
		return
	}
	w.watchHandler(conn, h)

	if err := w.poller.SetRead(&conn.slot); err != nil {
		w.unregisterConn(conn, CauseError(err))
		return
	}

	w.guard(conn, func() {
		conn.handler.OnConnected(conn)
	})
}

// --- watched-handler bridge ---

// watchHandler observes the liveness token of a watched handler. Token death
// closes the connection with CauseDisconnect.
func (w *Worker) watchHandler(conn *Conn, h Handler) {
	wh, ok := h.(Watched)
	if !ok {
		return
	}
	token := wh.LivenessToken()
	if token == nil {
		return
	}

	w.watched[conn.id] = conn
	stop := make(chan struct{})
	conn.watchStop = stop

	id := conn.id
	go func() {
		select {
		case <-token:
			_ = w.Enqueue(handlerDied{id: id})
		case <-stop:
		}
	}()
}

// --- idle sweep ---

func (w *Worker) idleSweep(now time.Time) {
	w.items.IdleCheck(w.cfg.IdleCheckFrequency)

	var timedOut []*Conn
	for _, conn := range w.conns {
		if conn.isTimedOut(now) {
			timedOut = append(timedOut, conn)
		}
	}
	for _, conn := range timedOut {
		w.unregisterConn(conn, CauseTimedOut)
	}
}

// --- summary ---

func (w *Worker) summary() ConnectionSummary {
	now := time.Now()
	snaps := make([]ConnSnapshot, 0, len(w.conns))
	for _, conn := range w.conns {
		snaps = append(snaps, conn.snapshot(now))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })

	return ConnectionSummary{
		Worker:      w,
		Connections: snaps,
		Loop: LoopStats{
			Ticks:   w.ticks.TotalCount(),
			TickP50: time.Duration(w.ticks.ValueAtQuantile(50)) * time.Microsecond,
			TickP99: time.Duration(w.ticks.ValueAtQuantile(99)) * time.Microsecond,
			TickMax: time.Duration(w.ticks.Max()) * time.Microsecond,
		},
	}
}

// --- shutdown ---

func (w *Worker) shutdown() {
	if w.stopped {
		return
	}
	w.stopped = true
	atomic.StoreUint32(&w.closed, 1)

	conns := make([]*Conn, 0, len(w.conns))
	for _, conn := range w.conns {
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		w.unregisterConn(conn, CauseTerminated)
	}

	for server, init := range w.inits {
		delete(w.inits, server)
		w.runShutdown(init, server)
	}

	if err := w.poller.Close(); err != nil {
		logx.Warn("poller close failed", "worker", w.id, "err", err)
	}
}
