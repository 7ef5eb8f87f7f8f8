// Package keel is a high-throughput TCP I/O engine built around
// single-threaded event-loop workers. Each Worker owns a set of nonblocking
// socket connections, drives reads and writes against an OS readiness
// selector (epoll on Linux, kqueue on the BSDs), dispatches bytes to
// per-connection handlers and manages the full item lifecycle: bind, connect,
// accept, handler swap, disconnect and idle timeout.
//
// External callers never touch worker state directly; they push tagged
// commands into a worker's mailbox and receive replies through one-shot
// callbacks. The Engine sits above the workers, allocating process-unique
// item ids and routing commands and accepted sockets across the pool.
package keel
