package memo

import (
	"sync"
	"time"

	"github.com/rickb777/date/v2/timespan"
)

type Stats struct {
	Hits     uint64
	Misses   uint64
	Failures uint64
	// LastComputation spans the most recent run of the wrapped function,
	// successful or not. It is empty before the first run.
	LastComputation timespan.TimeSpan
}

type counters struct {
	mu    sync.Mutex
	stats Stats
}

func (c *counters) hit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Hits++
}

func (c *counters) computed(from, to time.Time, failed bool) timespan.TimeSpan {
	span := timespan.BetweenTimes(from, to)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Misses++
	if failed {
		c.stats.Failures++
	}
	c.stats.LastComputation = span
	return span
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
