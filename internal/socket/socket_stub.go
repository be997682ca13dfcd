// File: internal/socket/socket_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package socket

import "github.com/momentics/camcore/api"

// The camera daemon only ships on Linux. These stubs keep the library
// compiling elsewhere; every operation reports api.ErrNotSupported.

func Listen(host string, port, backlog int) (int, error) {
	return -1, api.ErrNotSupported
}

func LocalPort(fd int) (int, error) {
	return 0, api.ErrNotSupported
}

func Accept(listenFD int) (int, string, error) {
	return -1, "", api.ErrNotSupported
}

func Read(fd int, p []byte) (int, error) {
	return 0, api.ErrNotSupported
}

func Write(fd int, p []byte) (int, error) {
	return 0, api.ErrNotSupported
}

func Close(fd int) error {
	return api.ErrNotSupported
}

func WouldBlock(err error) bool { return false }

func Interrupted(err error) bool { return false }

func Transient(err error) bool { return false }
