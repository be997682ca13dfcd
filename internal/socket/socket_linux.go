// File: internal/socket/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package socket

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/camcore/api"
)

// Listen opens a nonblocking TCP listening socket bound to host:port with
// SO_REUSEADDR set, so the daemon can rebind immediately after a restart.
func Listen(host string, port, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host != "" && host != "0.0.0.0" {
		ip4 := net.ParseIP(host).To4()
		if ip4 == nil {
			unix.Close(fd)
			return -1, fmt.Errorf("listen host %q: %w", host, api.ErrInvalidArgument)
		}
		copy(sa.Addr[:], ip4)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s:%d: %w", host, port, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s:%d: %w", host, port, err)
	}
	return fd, nil
}

// LocalPort reports the port the socket is bound to. Needed when listening
// on port 0 and the kernel picked one.
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, fmt.Errorf("getsockname: unexpected address family")
}

// Accept takes one pending connection off the listen queue. The accepted
// socket is nonblocking and close-on-exec. The errno comes back unwrapped so
// callers can test it with WouldBlock and Transient.
func Accept(listenFD int) (int, string, error) {
	fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	return fd, formatSockaddr(sa), nil
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return "unknown"
}

// Read reads once from fd. Errnos come back unwrapped.
func Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

// Write writes once to fd. Errnos come back unwrapped.
func Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// WouldBlock reports whether err is the nonblocking no-progress errno.
func WouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// Interrupted reports whether the syscall was cut short by a signal.
func Interrupted(err error) bool {
	return err == unix.EINTR
}

// Transient reports accept failures that do not mean the listener is broken.
func Transient(err error) bool {
	return err == unix.ECONNABORTED || Interrupted(err)
}
