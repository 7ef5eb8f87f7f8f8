//go:build linux

package internal

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type Poller struct {
	// fd is the file descriptor returned by epoll_create1.
	fd int

	// events is the buffer handed to epoll_wait.
	events []unix.EpollEvent

	// slots maps a registered file descriptor to its Slot. Readiness events
	// are resolved through this map, so a Slot deleted mid-batch is simply
	// skipped.
	slots map[int]*Slot

	// waker interrupts an in-flight epoll_wait when a handler is posted or
	// Wake is called from another goroutine.
	waker *EventFd

	// posted holds the handlers passed to Post and not yet dispatched.
	// Guarded by lck since Post is safe for concurrent use.
	posted []func()
	ready  []func()
	lck    sync.Mutex

	closed   uint32
	wakerBuf [8]byte
}

func NewPoller() (*Poller, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	eventFd, err := NewEventFd(true)
	if err != nil {
		unix.Close(epollFd)
		return nil, err
	}

	p := &Poller{
		fd:     epollFd,
		waker:  eventFd,
		events: make([]unix.EpollEvent, 128),
		slots:  make(map[int]*Slot),
	}

	err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, p.waker.Fd(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(p.waker.Fd()),
	})
	if err != nil {
		p.waker.Close()
		unix.Close(p.fd)
		return nil, os.NewSyscallError("epoll_ctl_add waker", err)
	}

	return p, nil
}

// Poll blocks for up to timeoutMs milliseconds (0 polls, -1 waits
// indefinitely) and dispatches the read/write handlers of every ready Slot.
// Returns ErrTimeout if the wait expired with nothing ready. Posted handlers
// are not run here; they accumulate until DispatchPosted.
func (p *Poller) Poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	if n == 0 && timeoutMs >= 0 {
		return 0, ErrTimeout
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		event := &p.events[i]
		fd := int(event.Fd)

		if fd == p.waker.Fd() {
			p.drainWaker()
			continue
		}

		slot, ok := p.slots[fd]
		if !ok {
			// unregistered by an earlier handler in this batch
			continue
		}

		// Error and hangup conditions are surfaced through the armed
		// handlers so the owner observes them on the next read/write.
		var flags PollerEvent
		if event.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			flags |= ReadFlags
		}
		if event.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			flags |= WriteFlags
		}

		if flags&slot.Events&ReadFlags != 0 {
			slot.DispatchRead(nil)
			dispatched++
		}

		// the read handler may have unregistered the slot
		if cur, ok := p.slots[fd]; ok && cur == slot && flags&slot.Events&WriteFlags != 0 {
			slot.DispatchWrite(nil)
			dispatched++
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
	_, err := p.waker.Write(1)
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
	return p.set(slot, ReadFlags)
}

func (p *Poller) SetWrite(slot *Slot) error {
	return p.set(slot, WriteFlags)
}

func (p *Poller) set(slot *Slot, flag PollerEvent) error {
	if slot.Events&flag == flag {
		return nil
	}

	old := slot.Events
	slot.Events |= flag
	p.slots[slot.Fd] = slot

	op := unix.EPOLL_CTL_MOD
	if old == 0 {
		op = unix.EPOLL_CTL_ADD
	}
	return p.ctl(op, slot)
}

func (p *Poller) DelRead(slot *Slot) error {
	return p.del(slot, ReadFlags)
}

func (p *Poller) DelWrite(slot *Slot) error {
	return p.del(slot, WriteFlags)
}

func (p *Poller) del(slot *Slot, flag PollerEvent) error {
	if slot.Events&flag != flag {
		return nil
	}

	slot.Events &^= flag
	if slot.Events != 0 {
		return p.ctl(unix.EPOLL_CTL_MOD, slot)
	}

	delete(p.slots, slot.Fd)
	return p.ctl(unix.EPOLL_CTL_DEL, slot)
}

// Del deregisters all interest on the slot.
func (p *Poller) Del(slot *Slot) error {
	if slot.Events == 0 {
		return nil
	}
	slot.Events = 0
	delete(p.slots, slot.Fd)
	return p.ctl(unix.EPOLL_CTL_DEL, slot)
}

func (p *Poller) ctl(op int, slot *Slot) error {
	var ev *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		var mask uint32
		if slot.Events&ReadFlags != 0 {
			mask |= unix.EPOLLIN | unix.EPOLLRDHUP
		}
		if slot.Events&WriteFlags != 0 {
			mask |= unix.EPOLLOUT
		}
		ev = &unix.EpollEvent{Events: mask, Fd: int32(slot.Fd)}
	}

	if err := unix.EpollCtl(p.fd, op, slot.Fd, ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
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
	return unix.Close(p.fd)
}

func (p *Poller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
