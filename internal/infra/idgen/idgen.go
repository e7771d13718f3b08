package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"gpu-notebook-bridge/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
)

var _ adapter.IDGenerator = (*ULIDGenerator)(nil)

// ULIDGenerator yields "<prefix>_<ULID>" identifiers. Ids minted within the
// same millisecond stay unique and sortable thanks to monotonic entropy.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULIDGenerator) NewID(prefix string) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	g.mu.Unlock()
	if prefix == "" {
		return id.String()
	}
	return prefix + "_" + id.String()
}
