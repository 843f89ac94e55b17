// Package ids mints identifiers for events, categories, users and
// participation requests.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a ULID string. IDs minted by one process sort in the
// order they were created, even within the same millisecond.
func NewULID() (string, error) {
	mu.Lock()
	defer mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// EventPath is the public path of an event; view statistics are keyed by it.
func EventPath(eventID string) string {
	return "/events/" + eventID
}
