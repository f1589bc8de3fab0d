// Package netio implements the readiness-notification driver spec.md
// calls out as an external collaborator: "the event-loop/poll driver
// that converts readiness notifications into calls on this subsystem."
// Nothing else in this module supplies one, so this package is the
// concrete epoll-backed instance the engine drives itself with.
package netio

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Token is an opaque handle the event loop uses to toggle read/write
// interest — spec.md §3.1's poll_index.
type Token int32

// Event reports one readiness notification for a registered fd.
type Event struct {
	Token    Token
	Readable bool
	Writable bool
	Err      bool
	Hup      bool
}

// Poller drives epoll readiness for a set of registered file
// descriptors. A Poller is not safe for concurrent registration and
// Wait calls from multiple goroutines; the engine owns exactly one and
// drives it from the loop thread only.
type Poller struct {
	epfd int

	mu      sync.Mutex
	fds     map[Token]int
	nextTok Token
}

// New creates an epoll instance.
func New() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: epoll_create1: %w", err)
	}
	return &Poller{epfd: fd, fds: make(map[Token]int)}, nil
}

// Close releases the epoll instance. Registered fds are not closed;
// their owning connection records do that.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

func eventsFor(readable, writable bool) uint32 {
	var ev uint32
	if readable {
		ev |= unix.EPOLLIN
	}
	if writable {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register starts watching fd for the given interest and returns the
// token the caller stores as the connection's poll_index.
func (p *Poller) Register(fd int, readable, writable bool) (Token, error) {
	p.mu.Lock()
	tok := p.nextTok
	p.nextTok++
	p.fds[tok] = fd
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: eventsFor(readable, writable), Fd: int32(tok)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.mu.Lock()
		delete(p.fds, tok)
		p.mu.Unlock()
		return 0, fmt.Errorf("netio: epoll_ctl add: %w", err)
	}
	return tok, nil
}

// SetInterest updates the read/write interest for an already
// registered token (start_reading/stop_reading/start_writing/
// stop_writing from spec.md §6).
func (p *Poller) SetInterest(tok Token, readable, writable bool) error {
	p.mu.Lock()
	fd, ok := p.fds[tok]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("netio: unknown token %d", tok)
	}
	ev := &unix.EpollEvent{Events: eventsFor(readable, writable), Fd: int32(tok)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("netio: epoll_ctl mod: %w", err)
	}
	return nil
}

// Deregister stops watching tok's fd. Safe to call during connection
// teardown even if the fd has already been closed (ENOENT is ignored).
func (p *Poller) Deregister(tok Token) error {
	p.mu.Lock()
	fd, ok := p.fds[tok]
	delete(p.fds, tok)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("netio: epoll_ctl del: %w", err)
	}
	return nil
}

// Wait blocks until at least one registered fd is ready or
// timeoutMillis elapses, returning the batch of events observed. ctx
// does not interrupt the wait; it is checked once epoll_wait returns,
// and if it is done its error is returned with the batch.
func (p *Poller) Wait(ctx context.Context, timeoutMillis int) ([]Event, error) {
	raw := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(p.epfd, raw, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("netio: epoll_wait: %w", err)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := raw[i]
		out = append(out, Event{
			Token:    Token(e.Fd),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Err:      e.Events&unix.EPOLLERR != 0,
			Hup:      e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	default:
		return out, nil
	}
}
