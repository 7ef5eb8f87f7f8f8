package keel

import (
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// AcceptedSocket is a nonblocking socket an external acceptor hands to a
// worker through a NewConnection command. The worker takes ownership of the
// descriptor on delivery.
type AcceptedSocket struct {
	Fd         int
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

func (s AcceptedSocket) Close() error {
	if s.Fd < 0 {
		return nil
	}
	return unix.Close(s.Fd)
}

// FromNetConn duplicates the descriptor out of a net.Conn, makes the
// duplicate nonblocking and closes the original. This is the bridge between
// a stdlib accept loop and the worker engine.
func FromNetConn(c net.Conn) (AcceptedSocket, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return AcceptedSocket{}, ErrNotSyscallFd
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return AcceptedSocket{}, err
	}

	fd := -1
	var dupErr error
	if err := raw.Control(func(s uintptr) {
		fd, dupErr = unix.Dup(int(s))
	}); err != nil {
		return AcceptedSocket{}, err
	}
	if dupErr != nil {
		return AcceptedSocket{}, os.NewSyscallError("dup", dupErr)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return AcceptedSocket{}, os.NewSyscallError("set_nonblock", err)
	}

	sock := AcceptedSocket{
		Fd:         fd,
		LocalAddr:  c.LocalAddr(),
		RemoteAddr: c.RemoteAddr(),
	}
	c.Close()
	return sock, nil
}
