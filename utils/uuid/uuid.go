package uuid

import (
	"crypto/rand"
	"sync"
	"time"

	google_uuid "github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MustUUID returns a random (version 4) UUID
func MustUUID() string {
	return google_uuid.New().String()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// MustULID returns a ULID. ULIDs generated by one process
// sort in generation order.
func MustULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
