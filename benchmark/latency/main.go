package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/felixge/fgprof"
	"github.com/meridianhft/keel"
)

var (
	samples  = flag.Int("n", 100_000, "number of round trips")
	size     = flag.Int("size", 64, "payload size in bytes")
	profAddr = flag.String("prof", "localhost:6060", "fgprof listen address")
)

type echoHandler struct {
	keel.NopHandler
	conn *keel.Conn
}

func (h *echoHandler) OnConnected(c *keel.Conn) { h.conn = c }

func (h *echoHandler) OnBytes(b []byte) {
	if err := h.conn.Send(b); err != nil {
		log.Printf("send failed: %v", err)
	}
}

type echoInitializer struct{}

func (echoInitializer) OnConnect(keel.ServerContext) (keel.Handler, error) {
	return &echoHandler{}, nil
}

func (echoInitializer) OnShutdown() {}

func (echoInitializer) ReceiveMessage(interface{}, keel.ReplyFunc) {}

type pingHandler struct {
	keel.NopHandler
	conn    *keel.Conn
	payload []byte
	got     int
	left    int
	start   time.Time
	hdr     *hdrhistogram.Histogram
	done    chan struct{}
}

func (h *pingHandler) OnConnected(c *keel.Conn) {
	h.conn = c
	h.start = time.Now()
	if err := c.Send(h.payload); err != nil {
		log.Printf("send failed: %v", err)
	}
}

func (h *pingHandler) OnBytes(b []byte) {
	h.got += len(b)
	if h.got < len(h.payload) {
		return
	}
	h.got = 0

	_ = h.hdr.RecordValue(time.Since(h.start).Microseconds())

	h.left--
	if h.left == 0 {
		h.conn.Close()
		return
	}

	h.start = time.Now()
	if err := h.conn.Send(h.payload); err != nil {
		log.Printf("send failed: %v", err)
	}
}

func (h *pingHandler) OnDisconnected(keel.DisconnectCause) {
	close(h.done)
}

func main() {
	flag.Parse()

	http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())
	go func() {
		log.Println(http.ListenAndServe(*profAddr, nil))
	}()

	engine, err := keel.NewEngine(keel.Config{NumWorkers: 2}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()
	engine.Start()

	server := keel.NewServerRef("echo-bench", nil)
	if err := engine.RegisterServer(server, func(*keel.Worker) (keel.Initializer, error) {
		return echoInitializer{}, nil
	}, nil); err != nil {
		log.Fatal(err)
	}

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		log.Fatal(err)
	}
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			sock, err := keel.FromNetConn(c)
			if err != nil {
				log.Printf("adopt failed: %v", err)
				continue
			}
			if _, err := engine.Accept(server, sock, 1); err != nil {
				sock.Close()
				return
			}
		}
	}()

	payload := make([]byte, *size)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	done := make(chan struct{})
	hdr := hdrhistogram.New(1, 10_000_000, 3)

	_, err = engine.Dispatch(keel.BindAndConnect{
		Addr: ln.Addr().String(),
		New: func(keel.Context) keel.WorkerItem {
			return &pingHandler{payload: payload, left: *samples, hdr: hdr, done: done}
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	<-done

	fmt.Printf("round trips: %d payload: %dB\n", *samples, *size)
	for _, q := range []float64{50, 90, 99, 99.9} {
		fmt.Printf("  p%-5v %6dus\n", q, hdr.ValueAtQuantile(q))
	}
	fmt.Printf("  max   %6dus\n", hdr.Max())
}
