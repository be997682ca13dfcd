// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin wrappers over the raw socket syscalls the network core drives
// directly. Everything operates on integer file descriptors in nonblocking
// close-on-exec mode; the readiness side lives in the reactor package.
package socket
