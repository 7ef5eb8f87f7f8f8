//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/meridianhft/keel/keelopts"
	"golang.org/x/sys/unix"
)

var errUnknownNetwork = errors.New("unknown network argument")

func CreateSocket(addr net.Addr) (int, error) {
	var domain int

	switch addr := addr.(type) {
	case *net.TCPAddr:
		domain = unix.AF_INET
		if addr.IP.To4() == nil {
			domain = unix.AF_INET6
		}
	default:
		return -1, fmt.Errorf("unsupported address type: %T", addr)
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}

	return fd, nil
}

// ConnectNonblocking starts a nonblocking connect. completed is true when the
// OS finished the handshake synchronously (possible on loopback); otherwise
// the caller must register for write readiness and call CheckConnect once the
// socket turns writable.
func ConnectNonblocking(
	network, addr string,
	opts ...keelopts.Option,
) (fd int, remoteAddr net.Addr, completed bool, err error) {
	if len(network) < 3 || network[:3] != "tcp" {
		return -1, nil, false, errUnknownNetwork
	}

	remoteAddr, err = net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, nil, false, err
	}

	fd, err = CreateSocket(remoteAddr)
	if err != nil {
		return -1, nil, false, err
	}

	opts = keelopts.AddOption(keelopts.Nonblocking(true), opts)
	if err := ApplyOpts(fd, opts...); err != nil {
		unix.Close(fd)
		return -1, nil, false, err
	}

	sa, err := ToSockaddr(remoteAddr)
	if err != nil {
		unix.Close(fd)
		return -1, nil, false, err
	}

	err = unix.Connect(fd, sa)
	switch err {
	case nil:
		return fd, remoteAddr, true, nil
	case unix.EINPROGRESS, unix.EAGAIN:
		// https://man7.org/linux/man-pages/man2/connect.2.html#EINPROGRESS
		return fd, remoteAddr, false, nil
	default:
		unix.Close(fd)
		return -1, nil, false, os.NewSyscallError("connect", err)
	}
}

// CheckConnect reports the outcome of a nonblocking connect once the socket
// became writable.
func CheckConnect(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if v != 0 {
		return os.NewSyscallError("connect", unix.Errno(v))
	}
	return nil
}

// SocketAddress returns the local address the socket is bound to.
func SocketAddress(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return FromSockaddr(sa), nil
}

func ToSockaddr(addr net.Addr) (unix.Sockaddr, error) {
	switch addr := addr.(type) {
	case *net.TCPAddr:
		if ip4 := addr.IP.To4(); ip4 != nil {
			sa := &unix.SockaddrInet4{Port: addr.Port}
			copy(sa.Addr[:], ip4)
			return sa, nil
		}
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To16())
		return sa, nil
	default:
		return nil, fmt.Errorf("unsupported address type: %T", addr)
	}
}

func FromSockaddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	default:
		return nil
	}
}

func ApplyOpts(fd int, opts ...keelopts.Option) error {
	for _, opt := range opts {
		switch t := opt.Type(); t {
		case keelopts.TypeNonblocking:
			v := opt.Value().(bool)
			if err := unix.SetNonblock(fd, v); err != nil {
				return os.NewSyscallError(fmt.Sprintf("set_nonblock(%v)", v), err)
			}
		case keelopts.TypeNoDelay:
			if err := unix.SetsockoptInt(
				fd,
				unix.IPPROTO_TCP,
				unix.TCP_NODELAY,
				boolToInt(opt.Value().(bool)),
			); err != nil {
				return os.NewSyscallError("no_delay", err)
			}
		case keelopts.TypeReuseAddr:
			if err := unix.SetsockoptInt(
				fd,
				unix.SOL_SOCKET,
				unix.SO_REUSEADDR,
				boolToInt(opt.Value().(bool)),
			); err != nil {
				return os.NewSyscallError("reuse_addr", err)
			}
		case keelopts.TypeReusePort:
			if err := unix.SetsockoptInt(
				fd,
				unix.SOL_SOCKET,
				unix.SO_REUSEPORT,
				boolToInt(opt.Value().(bool)),
			); err != nil {
				return os.NewSyscallError("reuse_port", err)
			}
		default:
			return fmt.Errorf("unsupported socket option %s", t)
		}
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
