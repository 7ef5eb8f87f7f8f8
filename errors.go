package keel

import "errors"

var (
	ErrAlreadyBound = errors.New("item id already bound")
	ErrUnknownItem  = errors.New("no item bound under id")
	ErrConnClosed   = errors.New("connection closed")
	ErrWorkerClosed = errors.New("worker closed")
	ErrBufferFull   = errors.New("output buffer at capacity")
	ErrEngineClosed = errors.New("engine closed")
	ErrNotSyscallFd = errors.New("connection does not expose a file descriptor")
)
