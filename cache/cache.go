// Package cache implements a fully-associative, write-back,
// write-invalidate cache that participates in a MESI snooping
// protocol over a shared bus.
package cache

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/bus"
	"github.com/sarchlab/mesisim/mem"
)

// Statistics holds simple per-cache counters, surfaced by the REPL's
// cache pretty-printer and useful for driving tests.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Cache is a fully-associative array of L lines plus a non-owning
// reference to the bus it issues transactions on.
type Cache struct {
	name      string
	blockSize int
	lines     []*Line
	// pendingIdx is the index of the single line (if any) currently
	// marked Pending; -1 when none.
	pendingIdx int

	bus    *bus.Bus
	logger zerolog.Logger
	stats  Statistics
}

// New creates a cache with lineCount lines of blockSize bytes each,
// connected to b. The cache registers itself with b as a snoop
// target.
func New(name string, lineCount, blockSize int, b *bus.Bus) *Cache {
	lines := make([]*Line, lineCount)
	for i := range lines {
		lines[i] = &Line{
			State: Invalid,
			Use:   i,
			Data:  make([]byte, blockSize),
		}
	}

	c := &Cache{
		name:       name,
		blockSize:  blockSize,
		lines:      lines,
		pendingIdx: -1,
		bus:        b,
		logger:     log.With().Str("component", "cache").Str("cache", name).Logger(),
	}
	b.Connect(c)
	return c
}

// Name returns the cache's identifying label (e.g. "cache1").
func (c *Cache) Name() string {
	return c.name
}

// LineCount returns the number of lines L in the cache.
func (c *Cache) LineCount() int {
	return len(c.lines)
}

// Lines returns the cache's lines in index order, for pretty-printing
// and test assertions. Callers must not mutate the returned slice or
// its elements.
func (c *Cache) Lines() []*Line {
	return c.lines
}

// Stats returns the cache's access counters.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// HasPending reports whether any line in the cache currently carries
// the transient Pending flag.
func (c *Cache) HasPending() bool {
	return c.pendingIdx >= 0
}

// ClearPending clears the single pending line's flag, as called by the
// owning core once the simulated fill latency has elapsed.
func (c *Cache) ClearPending() {
	if c.pendingIdx < 0 {
		return
	}
	c.lines[c.pendingIdx].Pending = false
	c.pendingIdx = -1
}

// CPURead performs a CPU-side load of a single byte at addr. pending
// is true exactly when main memory had to be accessed to satisfy a
// miss; err is non-nil only for ErrPendingTransaction, in which case
// no line was mutated (the Reads and Misses counters still count the
// attempt).
func (c *Cache) CPURead(addr uint64) (value byte, hit bool, pending bool, err error) {
	c.stats.Reads++

	block := mem.BlockAddress(addr, uint64(c.blockSize))
	offset := mem.Offset(addr, uint64(c.blockSize))

	idx := c.find(block)
	if idx >= 0 && c.lines[idx].State != Invalid {
		c.stats.Hits++
		c.touch(idx)
		return c.lines[idx].Data[offset], true, false, nil
	}

	c.stats.Misses++
	data, memAccessed, err := c.bus.PutMessage(c, bus.Message{Kind: bus.Read, Block: block})
	if err != nil {
		return 0, false, false, err
	}

	idx = c.install(block, data)
	line := c.lines[idx]
	if memAccessed {
		line.State = Exclusive
		c.markPending(idx)
	} else {
		line.State = Shared
	}
	c.touch(idx)

	c.logger.Debug().Uint64("addr", addr).Uint64("block", block).Str("state", line.State.String()).Msg("read miss installed")
	return line.Data[offset], false, memAccessed, nil
}

// CPUWrite performs a CPU-side store of a single byte at addr.
// pending has the same meaning as in CPURead.
func (c *Cache) CPUWrite(addr uint64, value byte) (hit bool, pending bool, err error) {
	c.stats.Writes++

	block := mem.BlockAddress(addr, uint64(c.blockSize))
	offset := mem.Offset(addr, uint64(c.blockSize))

	idx := c.find(block)
	if idx >= 0 && c.lines[idx].State != Invalid {
		c.stats.Hits++
		line := c.lines[idx]

		if line.State == Shared {
			if _, _, err := c.bus.PutMessage(c, bus.Message{Kind: bus.Upgrade, Block: block}); err != nil {
				return false, false, err
			}
		}

		line.State = Modified
		line.Data[offset] = value
		c.touch(idx)
		return true, false, nil
	}

	c.stats.Misses++
	data, memAccessed, err := c.bus.PutMessage(c, bus.Message{Kind: bus.ReadForWrite, Block: block})
	if err != nil {
		return false, false, err
	}

	idx = c.install(block, data)
	line := c.lines[idx]
	line.State = Modified
	line.Data[offset] = value
	if memAccessed {
		c.markPending(idx)
	}
	c.touch(idx)

	c.logger.Debug().Uint64("addr", addr).Uint64("block", block).Msg("write miss installed")
	return false, memAccessed, nil
}

// find returns the index of the (at most one) non-Invalid line tagged
// block, or -1 if none matches.
func (c *Cache) find(block uint64) int {
	for i, l := range c.lines {
		if l.State != Invalid && l.Block == block {
			return i
		}
	}
	return -1
}

// install selects a victim line (preferring an Invalid line, else the
// smallest Use), writes back the victim if it's Modified, and loads
// data into it. It returns the line's index; state is left for the
// caller to set.
func (c *Cache) install(block uint64, data []byte) int {
	idx := c.findVictim()
	victim := c.lines[idx]

	if victim.State != Invalid {
		c.stats.Evictions++
		if victim.State == Modified {
			payload := make([]byte, len(victim.Data))
			copy(payload, victim.Data)
			c.bus.PutMessage(c, bus.Message{Kind: bus.Writeback, Block: victim.Block, Data: payload})
			c.stats.Writebacks++
			c.logger.Debug().Uint64("block", victim.Block).Msg("evicted Modified line, wrote back")
		}
	}

	victim.Block = block
	victim.Data = append([]byte(nil), data...)
	return idx
}

// findVictim prefers the first Invalid line in index (insertion)
// order; otherwise it picks the line with the smallest Use rank.
func (c *Cache) findVictim() int {
	for i, l := range c.lines {
		if l.State == Invalid {
			return i
		}
	}

	victim := 0
	for i, l := range c.lines {
		if l.Use < c.lines[victim].Use {
			victim = i
		}
	}
	return victim
}

// touch promotes the line at idx to most-recently-used, decrementing
// the rank of every line that was more recently used than it, so that
// Use values remain a permutation of [0, L-1].
func (c *Cache) touch(idx int) {
	line := c.lines[idx]
	old := line.Use
	top := len(c.lines) - 1
	if old == top {
		return
	}

	line.Use = top
	for _, other := range c.lines {
		if other == line || other.Use <= old {
			continue
		}
		other.Use--
	}
}

func (c *Cache) markPending(idx int) {
	c.pendingIdx = idx
	c.lines[idx].Pending = true
}
