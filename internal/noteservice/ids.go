package noteservice

import (
	"fmt"
	"sync"
	"time"
)

// idGenerator issues time-based ids: eight hex digits of Unix seconds
// followed by five hex digits of microseconds, the layout older stores used.
// Ids never repeat or go backwards within a process, even when the clock
// stalls or steps back.
type idGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64 // microseconds of the last id issued
}

func newIDGenerator(now func() time.Time) *idGenerator {
	return &idGenerator{now: now}
}

func (g *idGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	us := g.now().UnixMicro()
	if us <= g.last {
		us = g.last + 1
	}
	g.last = us
	return fmt.Sprintf("%08x%05x", us/1_000_000, us%1_000_000)
}
