//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7)-based Poller implementation and factory.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/camcore/api"
)

// epollPoller is the edge-triggered epoll Poller.
type epollPoller struct {
	epfd    int
	closed  atomic.Bool
	scratch []unix.EpollEvent // reused by Wait; single-caller only
}

// NewPoller constructs the platform Poller for Linux.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

// Add registers fd edge-triggered for read readiness. EPOLLRDHUP lets the
// dispatcher distinguish a half-closed peer from payload.
func (p *epollPoller) Add(fd int) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd.
func (p *epollPoller) Remove(fd int) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks up to timeout and translates raw epoll events.
func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, api.ErrPollerClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.scratch) < len(events) {
		p.scratch = make([]unix.EpollEvent, len(events))
	}
	raw := p.scratch[:len(events)]

	ms := int(timeout / time.Millisecond)
	for {
		n, err := unix.EpollWait(p.epfd, raw, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if p.closed.Load() {
				return 0, api.ErrPollerClosed
			}
			return 0, fmt.Errorf("epoll wait: %w", err)
		}
		for i := 0; i < n; i++ {
			events[i] = Event{
				FD:       int(raw[i].Fd),
				Readable: raw[i].Events&unix.EPOLLIN != 0,
				Hangup:   raw[i].Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
			}
		}
		return n, nil
	}
}

// Close releases the epoll instance.
func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.epfd)
}
