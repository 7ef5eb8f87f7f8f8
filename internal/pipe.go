//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

// Pipe is the wakeup primitive on platforms without eventfd. The read end is
// registered with the Poller; writing a byte interrupts the kevent wait.
type Pipe struct {
	pipe [2]int
}

func NewPipe() (*Pipe, error) {
	p := &Pipe{}
	if err := unix.Pipe(p.pipe[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}

	if err := unix.SetNonblock(p.pipe[0], true); err != nil {
		p.Close()
		return nil, os.NewSyscallError("pipe read set_nonblock", err)
	}
	if err := unix.SetNonblock(p.pipe[1], true); err != nil {
		p.Close()
		return nil, os.NewSyscallError("pipe write set_nonblock", err)
	}

	return p, nil
}

func (p *Pipe) Write(b []byte) (int, error) {
	return unix.Write(p.pipe[1], b)
}

func (p *Pipe) Read(b []byte) (int, error) {
	return unix.Read(p.pipe[0], b)
}

func (p *Pipe) ReadFd() int {
	return p.pipe[0]
}

func (p *Pipe) WriteFd() int {
	return p.pipe[1]
}

func (p *Pipe) Close() error {
	err := unix.Close(p.pipe[0])
	if err2 := unix.Close(p.pipe[1]); err == nil {
		err = err2
	}
	return err
}
