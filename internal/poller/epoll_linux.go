//go:build linux

package poller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Epoll is a level-triggered Poller backed by epoll(7) and an eventfd waker.
type Epoll struct {
	epfd   int
	wakefd int
	closed atomic.Bool

	mu     sync.Mutex
	next   Token
	fds    map[Token]int
	tokens map[int]Token
	raw    []unix.EpollEvent
}

func New() (Poller, error) {
	return NewEpoll()
}

func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl waker: %w", err)
	}

	return &Epoll{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[Token]int),
		tokens: make(map[int]Token),
	}, nil
}

func toEpoll(interest Interest) uint32 {
	var events uint32
	if interest&Readable != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpoll(events uint32) Readiness {
	var r Readiness
	if events&unix.EPOLLIN != 0 {
		r |= EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		r |= EventWrite
	}
	if events&unix.EPOLLERR != 0 {
		r |= EventError
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		r |= EventHangup
	}
	return r
}

func (e *Epoll) Register(fd int, interest Interest) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, ErrClosed
	}
	if _, ok := e.tokens[fd]; ok {
		return 0, fmt.Errorf("register fd %d: %w", fd, unix.EEXIST)
	}

	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return 0, fmt.Errorf("epoll_ctl add: %w", err)
	}

	e.next++
	token := e.next
	e.fds[token] = fd
	e.tokens[fd] = token

	return token, nil
}

func (e *Epoll) Modify(token Token, interest Interest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	fd, ok := e.fds[token]
	if !ok {
		return ErrUnknownToken
	}

	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	return nil
}

func (e *Epoll) Deregister(token Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	fd, ok := e.fds[token]
	if !ok {
		return ErrUnknownToken
	}

	delete(e.fds, token)
	delete(e.tokens, fd)

	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del: %w", err)
	}
	return nil
}

func (e *Epoll) Wait(events []Event, timeout time.Duration) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(e.raw) < len(events) {
		e.raw = make([]unix.EpollEvent, len(events))
	}
	raw := e.raw[:len(events)]

	n, err := unix.EpollWait(e.epfd, raw, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, ev := range raw[:n] {
		fd := int(ev.Fd)
		if fd == e.wakefd {
			e.drainWaker()
			continue
		}
		token, ok := e.tokens[fd]
		if !ok {
			continue
		}
		events[count] = Event{Token: token, Ready: fromEpoll(ev.Events)}
		count++
	}

	return count, nil
}

func timeoutMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout > 0 && timeout < time.Millisecond:
		return 1
	default:
		return int(timeout.Milliseconds())
	}
}

func (e *Epoll) drainWaker() {
	var buf [8]byte
	for {
		if _, err := unix.Read(e.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (e *Epoll) Wake() error {
	if e.closed.Load() {
		return ErrClosed
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(e.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("wake: %w", err)
	}
	return nil
}

func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	return errors.Join(unix.Close(e.wakefd), unix.Close(e.epfd))
}
