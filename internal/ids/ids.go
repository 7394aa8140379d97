package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEventID returns a ULID stamped with at. IDs minted in sequence sort in the same order.
func NewEventID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// NewEntityID returns a random UUID for stored entities.
func NewEntityID() string {
	return uuid.NewString()
}

// NewTicketReference returns a human readable key such as TCK-1A2B3C4D.
func NewTicketReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TCK-" + strings.ToUpper(raw[:8])
}
