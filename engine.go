package keel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/logx"
)

// Engine is the parent I/O system. It owns the workers, allocates
// process-unique item ids, routes engine-level commands and accepted sockets
// across workers, and fans server registration out to every worker.
type Engine struct {
	cfg     Config
	notify  NotifyFunc
	workers []*Worker

	nextID int64  // last allocated item id
	rr     uint32 // round-robin cursor

	wg      sync.WaitGroup
	started uint32
	closed  uint32
}

func NewEngine(cfg Config, notify NotifyFunc) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, notify: notify}
	for i := 0; i < cfg.NumWorkers; i++ {
		w, err := NewWorker(WorkerID(i), cfg, notify, e.schedule)
		if err != nil {
			for _, prev := range e.workers {
				prev.poller.Close()
			}
			return nil, err
		}
		e.workers = append(e.workers, w)
	}
	return e, nil
}

// Start launches every worker loop on its own goroutine. Each worker emits
// WorkerReady as it comes up.
func (e *Engine) Start() {
	if !atomic.CompareAndSwapUint32(&e.started, 0, 1) {
		return
	}
	for _, w := range e.workers {
		w := w
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := w.Run(); err != nil {
				logx.Error("worker loop failed", "worker", w.id, "err", err)
			}
		}()
	}
}

// schedule is the scheduler workers delegate Schedule commands to.
func (e *Engine) schedule(delay time.Duration, fire func()) {
	time.AfterFunc(delay, fire)
}

// NextID allocates a process-unique item id.
func (e *Engine) NextID() int64 {
	return atomic.AddInt64(&e.nextID, 1)
}

// NewContext allocates an id on the next round-robin worker.
func (e *Engine) NewContext() Context {
	return Context{ID: e.NextID(), Worker: e.pick()}
}

func (e *Engine) pick() *Worker {
	n := atomic.AddUint32(&e.rr, 1)
	return e.workers[int(n-1)%len(e.workers)]
}

func (e *Engine) Workers() []*Worker {
	return e.workers
}

// Dispatch routes an engine-level command, returning the context the item was
// (or will be) bound under.
func (e *Engine) Dispatch(cmd IOCommand) (Context, error) {
	if atomic.LoadUint32(&e.closed) == 1 {
		return Context{}, ErrEngineClosed
	}

	switch cmd := cmd.(type) {
	case BindItem:
		ctx := e.NewContext()
		return ctx, ctx.Worker.Enqueue(bindNew{id: ctx.ID, build: cmd.New})
	case BindAndConnect:
		ctx := e.NewContext()
		return ctx, ctx.Worker.Enqueue(bindNew{id: ctx.ID, build: cmd.New, addr: cmd.Addr})
	case BindWithContext:
		return cmd.Ctx, cmd.Ctx.Worker.Enqueue(bindNew{id: cmd.Ctx.ID, build: cmd.New})
	default:
		return Context{}, fmt.Errorf("unknown io command %T", cmd)
	}
}

// Accept hands an accepted socket to the next round-robin worker on behalf of
// server, returning the item id the connection's handler will be bound under.
func (e *Engine) Accept(server *ServerRef, sock AcceptedSocket, attempt int) (int64, error) {
	if atomic.LoadUint32(&e.closed) == 1 {
		return 0, ErrEngineClosed
	}
	ctx := e.NewContext()
	return ctx.ID, ctx.Worker.Enqueue(NewConnection{
		ID:      ctx.ID,
		Server:  server,
		Socket:  sock,
		Attempt: attempt,
	})
}

// RegisterServer fans the registration out to every worker and aggregates
// the acknowledgements: the reply is a single ServerRegistered once every
// worker acknowledged, or the first RegistrationFailed.
func (e *Engine) RegisterServer(server *ServerRef, factory InitializerFactory, reply ReplyFunc) error {
	if atomic.LoadUint32(&e.closed) == 1 {
		return ErrEngineClosed
	}

	agg := newReplyAggregator(len(e.workers), reply, func(failed *RegistrationFailed) Notification {
		if failed != nil {
			return *failed
		}
		return ServerRegistered{Server: server}
	})

	for _, w := range e.workers {
		if err := w.Enqueue(RegisterServer{Server: server, New: factory, Reply: agg.collect}); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterServer fans out to every worker; the reply fires once all
// workers dropped the server.
func (e *Engine) UnregisterServer(server *ServerRef, reply ReplyFunc) error {
	if atomic.LoadUint32(&e.closed) == 1 {
		return ErrEngineClosed
	}

	agg := newReplyAggregator(len(e.workers), reply, func(*RegistrationFailed) Notification {
		return ServerUnregistered{Server: server}
	})

	for _, w := range e.workers {
		if err := w.Enqueue(UnregisterServer{Server: server, Reply: agg.collect}); err != nil {
			return err
		}
	}
	return nil
}

// ServerShutdownRequest asks every matching handler on every worker to wind
// down at its own pace.
func (e *Engine) ServerShutdownRequest(server *ServerRef) error {
	for _, w := range e.workers {
		if err := w.Enqueue(ServerShutdownRequest{Server: server}); err != nil {
			return err
		}
	}
	return nil
}

// Summaries collects a ConnectionSummary from every worker and delivers the
// full set once.
func (e *Engine) Summaries(reply func([]ConnectionSummary)) error {
	var (
		lck sync.Mutex
		out []ConnectionSummary
	)
	remaining := len(e.workers)

	for _, w := range e.workers {
		err := w.Enqueue(SummaryRequest{Reply: func(n interface{}) {
			s, ok := n.(ConnectionSummary)
			if !ok {
				return
			}
			lck.Lock()
			out = append(out, s)
			remaining--
			done := remaining == 0
			lck.Unlock()
			if done && reply != nil {
				reply(out)
			}
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops every worker, waits for the loops to return and releases the
// pollers. Safe to call more than once.
func (e *Engine) Close() error {
	if !atomic.CompareAndSwapUint32(&e.closed, 0, 1) {
		return nil
	}

	if atomic.LoadUint32(&e.started) == 0 {
		for _, w := range e.workers {
			w.poller.Close()
		}
		return nil
	}

	for _, w := range e.workers {
		if err := w.Close(); err != nil {
			logx.Warn("worker close failed", "worker", w.id, "err", err)
		}
	}
	e.wg.Wait()
	return nil
}

// replyAggregator folds per-worker acknowledgements into one reply.
type replyAggregator struct {
	lck       sync.Mutex
	remaining int
	failed    *RegistrationFailed
	reply     ReplyFunc
	finish    func(*RegistrationFailed) Notification
}

func newReplyAggregator(n int, reply ReplyFunc, finish func(*RegistrationFailed) Notification) *replyAggregator {
	return &replyAggregator{remaining: n, reply: reply, finish: finish}
}

func (a *replyAggregator) collect(n interface{}) {
	a.lck.Lock()
	if f, ok := n.(RegistrationFailed); ok && a.failed == nil {
		a.failed = &f
	}
	a.remaining--
	done := a.remaining == 0
	failed := a.failed
	a.lck.Unlock()

	if done && a.reply != nil {
		a.reply(a.finish(failed))
	}
}
