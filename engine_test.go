package keel

import (
	"net"
	"testing"
	"time"
)

func startEngine(t *testing.T, cfg Config, notify NotifyFunc) *Engine {
	t.Helper()

	e, err := NewEngine(cfg, notify)
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	t.Cleanup(func() {
		e.Close() //nolint:errcheck
	})
	return e
}

func TestEngineWorkerReady(t *testing.T) {
	ready := make(chan Notification, 4)
	startEngine(t, Config{NumWorkers: 2}, func(n Notification) {
		if _, ok := n.(WorkerReady); ok {
			ready <- n
		}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-ready:
		case <-time.After(testTimeout):
			t.Fatal("worker never reported ready")
		}
	}
}

func TestEngineDispatchRoundRobin(t *testing.T) {
	e := startEngine(t, Config{NumWorkers: 2}, nil)

	seen := make(map[WorkerID]bool)
	ids := make(map[int64]bool)

	for i := 0; i < 4; i++ {
		h := newTestHandler()
		ctx, err := e.Dispatch(BindItem{New: func(Context) WorkerItem { return h }})
		if err != nil {
			t.Fatal(err)
		}
		if ids[ctx.ID] {
			t.Fatalf("id %d allocated twice", ctx.ID)
		}
		ids[ctx.ID] = true
		seen[ctx.Worker.ID()] = true

		if ev := recvString(t, h.events); ev != "bind" {
			t.Fatalf("expected bind, got %q", ev)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected both workers used, saw %d", len(seen))
	}
}

func TestEngineBindWithContext(t *testing.T) {
	e := startEngine(t, Config{NumWorkers: 2}, nil)

	ctx := e.NewContext()
	h := newTestHandler()
	got, err := e.Dispatch(BindWithContext{Ctx: ctx, New: func(inner Context) WorkerItem {
		if inner.ID != ctx.ID || inner.Worker != ctx.Worker {
			t.Errorf("factory context %+v, want %+v", inner, ctx)
		}
		return h
	}})
	if err != nil {
		t.Fatal(err)
	}
	if got != ctx {
		t.Fatalf("dispatch returned %+v, want %+v", got, ctx)
	}
	recvString(t, h.events)
}

func TestEngineBindAndConnect(t *testing.T) {
	e := startEngine(t, Config{NumWorkers: 1}, nil)

	ln := listen(t)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 64)
		for {
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			if _, err := c.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	h := newTestHandler()
	h.sendOnConnect = []byte("hi")
	if _, err := e.Dispatch(BindAndConnect{
		Addr: ln.Addr().String(),
		New:  func(Context) WorkerItem { return h },
	}); err != nil {
		t.Fatal(err)
	}

	recvConn(t, h.conns)
	if got := recvBytes(t, h.bytes); string(got) != "hi" {
		t.Fatalf("echoed %q", got)
	}
}

func TestEngineRegisterServerFanOut(t *testing.T) {
	e := startEngine(t, Config{NumWorkers: 2}, nil)

	server := NewServerRef("everywhere", nil)
	ack := make(chan interface{}, 1)
	err := e.RegisterServer(server, func(*Worker) (Initializer, error) {
		h := newTestHandler()
		return &testInitializer{onConnect: func(ServerContext) (Handler, error) { return h, nil }}, nil
	}, func(n interface{}) { ack <- n })
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := recvAny(t, ack).(ServerRegistered); !ok {
		t.Fatal("expected aggregated ServerRegistered")
	}

	unack := make(chan interface{}, 1)
	if err := e.UnregisterServer(server, func(n interface{}) { unack <- n }); err != nil {
		t.Fatal(err)
	}
	if _, ok := recvAny(t, unack).(ServerUnregistered); !ok {
		t.Fatal("expected aggregated ServerUnregistered")
	}
}

func TestEngineAcceptClosesOnShutdown(t *testing.T) {
	notify := func(Notification) {}
	e, err := NewEngine(Config{NumWorkers: 1}, notify)
	if err != nil {
		t.Fatal(err)
	}
	e.Start()

	h := newTestHandler()
	server := NewServerRef("short-lived", nil)
	ack := make(chan interface{}, 1)
	if err := e.RegisterServer(server, singleHandlerInitializer(h), func(n interface{}) { ack <- n }); err != nil {
		t.Fatal(err)
	}
	recvAny(t, ack)

	ln := listen(t)
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	accepted, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	sock, err := FromNetConn(accepted)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Accept(server, sock, 1); err != nil {
		t.Fatal(err)
	}
	recvConn(t, h.conns)

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if cause := recvCause(t, h.causes); cause.Kind != KindTerminated {
		t.Fatalf("expected terminated, got %s", cause)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEngineSummaries(t *testing.T) {
	e := startEngine(t, Config{NumWorkers: 2}, nil)

	out := make(chan []ConnectionSummary, 1)
	if err := e.Summaries(func(s []ConnectionSummary) { out <- s }); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-out:
		if len(s) != 2 {
			t.Fatalf("got %d summaries", len(s))
		}
	case <-time.After(testTimeout):
		t.Fatal("summaries never arrived")
	}
}
