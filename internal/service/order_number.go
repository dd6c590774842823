package service

import (
	"fmt"
	"sync"
	"time"
)

// OrderNumberGenerator produces FS-YYYYMMDD-NNNNNN numbers.
// The suffix is the last six digits of a strictly increasing millisecond
// counter: calls within one millisecond get distinct suffixes, but the suffix
// wraps every 1000 seconds and other instances run their own counters.
// Uniqueness is therefore enforced by the order_number constraint, and the
// caller asks for another number on a unique violation.
type OrderNumberGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewOrderNumberGenerator returns a generator reading the wall clock
func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{now: time.Now}
}

// Next returns a fresh order number
func (g *OrderNumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	n := now.UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n

	return fmt.Sprintf("FS-%s-%06d", now.Format("20060102"), n%1000000)
}
