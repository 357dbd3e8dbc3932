// Package ids generates the identifier formats used across the services:
// ULIDs for users, requests, and outbox rows, and 24-character hex ids for
// catalog records whose public route contract pins that shape.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-sortable ULID encoded as a 26-character string.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewHexID returns a 24-character lowercase hex id. Catalog records keep
// this legacy object-id format because the public /api/products/:id route
// validates against ^[0-9a-fA-F]{24}$.
func NewHexID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}
