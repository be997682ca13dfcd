// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api holds the small set of contracts shared across camcore:
// sentinel errors and statistics snapshot types. Implementation packages
// (pool, conn, workers, reactor, server) depend on api and never on each
// other's internals.
package api
