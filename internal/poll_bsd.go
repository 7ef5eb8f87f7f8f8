//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type Poller struct {
	// kq is the kqueue file descriptor.
	kq int

	// eventlist is the buffer handed to kevent.
	eventlist []unix.Kevent_t

	// slots maps a registered file descriptor to its Slot. kqueue keeps
	// separate read/write filters per fd; Slot.Events mirrors which filters
	// are currently added.
	slots map[int]*Slot

	// waker interrupts an in-flight kevent wait. The read end of the pipe is
	// permanently registered for reads.
	waker *Pipe

	posted []func()
	ready  []func()
	lck    sync.Mutex

	closed   uint32
	wakerBuf [8]byte
}

func NewPoller() (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}

	waker, err := NewPipe()
	if err != nil {
		unix.Close(kq)
		return nil, err
	}

	p := &Poller{
		kq:        kq,
		waker:     waker,
		eventlist: make([]unix.Kevent_t, 128),
		slots:     make(map[int]*Slot),
	}

	_, err = unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  uint64(waker.ReadFd()),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}, nil, nil)
	if err != nil {
		waker.Close()
		unix.Close(kq)
		return nil, os.NewSyscallError("kevent add waker", err)
	}

	return p, nil
}

// Poll blocks for up to timeoutMs milliseconds (0 polls, -1 waits
// indefinitely) and dispatches the read/write handlers of every ready Slot.
// Returns ErrTimeout if the wait expired with nothing ready. Posted handlers
// are not run here; they accumulate until DispatchPosted.
func (p *Poller) Poll(timeoutMs int) (int, error) {
	var timeout *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}

	n, err := unix.Kevent(p.kq, nil, p.eventlist, timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent", err)
	}

	if n == 0 && timeoutMs >= 0 {
		return 0, ErrTimeout
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		event := &p.eventlist[i]
		fd := int(event.Ident)

		if fd == p.waker.ReadFd() {
			p.drainWaker()
			continue
		}

		slot, ok := p.slots[fd]
		if !ok {
			// unregistered by an earlier handler in this batch
			continue
		}

		switch event.Filter {
		case unix.EVFILT_READ:
			if slot.Events&ReadFlags != 0 {
				slot.DispatchRead(nil)
				dispatched++
			}
		case unix.EVFILT_WRITE:
			if cur, ok := p.slots[fd]; ok && cur == slot && slot.Events&WriteFlags != 0 {
				slot.DispatchWrite(nil)
				dispatched++
			}
		}
	}

	return dispatched, nil
}

// Post schedules a handler to run on the Poller goroutine at the next
// DispatchPosted call. Safe for concurrent use.
func (p *Poller) Post(handler func()) error {
	p.lck.Lock()
	p.posted = append(p.posted, handler)
	p.lck.Unlock()

	return p.Wake()
}

// Posted returns the number of handlers waiting for DispatchPosted.
func (p *Poller) Posted() int {
	p.lck.Lock()
	defer p.lck.Unlock()
	return len(p.posted)
}

// Wake interrupts an in-flight Poll. Safe for concurrent use.
func (p *Poller) Wake() error {
	_, err := p.waker.Write([]byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// DispatchPosted runs every handler passed to Post since the previous call,
// in post order, on the calling goroutine.
func (p *Poller) DispatchPosted() int {
	p.lck.Lock()
	p.ready = append(p.ready[:0], p.posted...)
	p.posted = p.posted[:0]
	p.lck.Unlock()

	for _, handler := range p.ready {
		handler()
	}
	return len(p.ready)
}

func (p *Poller) drainWaker() {
	for {
		_, err := p.waker.Read(p.wakerBuf[:])
		if err != nil {
			break
		}
	}
}

func (p *Poller) SetRead(slot *Slot) error {
	return p.set(slot, ReadFlags, unix.EVFILT_READ)
}

func (p *Poller) SetWrite(slot *Slot) error {
	return p.set(slot, WriteFlags, unix.EVFILT_WRITE)
}

func (p *Poller) set(slot *Slot, flag PollerEvent, filter int16) error {
	if slot.Events&flag == flag {
		return nil
	}

	slot.Events |= flag
	p.slots[slot.Fd] = slot

	return p.ctl(slot.Fd, filter, unix.EV_ADD)
}

func (p *Poller) DelRead(slot *Slot) error {
	return p.del(slot, ReadFlags, unix.EVFILT_READ)
}

func (p *Poller) DelWrite(slot *Slot) error {
	return p.del(slot, WriteFlags, unix.EVFILT_WRITE)
}

func (p *Poller) del(slot *Slot, flag PollerEvent, filter int16) error {
	if slot.Events&flag != flag {
		return nil
	}

	slot.Events &^= flag
	if slot.Events == 0 {
		delete(p.slots, slot.Fd)
	}

	return p.ctl(slot.Fd, filter, unix.EV_DELETE)
}

// Del deregisters all interest on the slot.
func (p *Poller) Del(slot *Slot) error {
	if err := p.DelRead(slot); err != nil {
		return err
	}
	return p.DelWrite(slot)
}

func (p *Poller) ctl(fd int, filter int16, flags uint16) error {
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}}, nil, nil)
	if err != nil {
		return os.NewSyscallError("kevent", err)
	}
	return nil
}

func (p *Poller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	p.lck.Lock()
	p.posted = nil
	p.lck.Unlock()

	p.waker.Close()
	return unix.Close(p.kq)
}

func (p *Poller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
