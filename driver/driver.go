// Package driver provides the deterministic round-robin clock that
// steps every core once per external step, plus presentation helpers
// for the cache/memory inspection commands. No coherence logic lives
// here; it only sequences cores and renders their state.
package driver

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/bus"
	"github.com/sarchlab/mesisim/cache"
	"github.com/sarchlab/mesisim/core"
	"github.com/sarchlab/mesisim/mem"
)

// Driver owns every core and cache in the simulation and advances
// them in a fixed round-robin order.
type Driver struct {
	memory *mem.Memory
	bus    *bus.Bus
	cores  []*core.Core
	caches []*cache.Cache

	steps  uint64
	logger zerolog.Logger
}

// New assembles a Driver. cores and caches must be in matching order
// (cores[i] drives caches[i]).
func New(memory *mem.Memory, b *bus.Bus, cores []*core.Core, caches []*cache.Cache) *Driver {
	return &Driver{
		memory: memory,
		bus:    b,
		cores:  cores,
		caches: caches,
		logger: log.With().Str("component", "driver").Logger(),
	}
}

// Step advances every core exactly once, in order, recovering a
// *bus.InvariantViolationError panic from any core's Tick into a
// returned error so the CLI can report it and exit non-zero instead of
// crashing the process.
func (d *Driver) Step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if iv, ok := r.(*bus.InvariantViolationError); ok {
				err = iv
				return
			}
			panic(r)
		}
	}()

	d.steps++
	for _, c := range d.cores {
		if tickErr := c.Tick(); tickErr != nil {
			return tickErr
		}
	}
	return nil
}

// Steps returns the number of completed Step calls.
func (d *Driver) Steps() uint64 {
	return d.steps
}

// Finished reports whether every core has reached the Finished state.
func (d *Driver) Finished() bool {
	for _, c := range d.cores {
		if c.State() != core.Finished {
			return false
		}
	}
	return true
}

// CacheByIndex returns the 1-based-indexed cache (c1 is index 1), or
// an error if i is out of range.
func (d *Driver) CacheByIndex(i int) (*cache.Cache, error) {
	if i < 1 || i > len(d.caches) {
		return nil, fmt.Errorf("driver: no such cache c%d (have %d cores)", i, len(d.caches))
	}
	return d.caches[i-1], nil
}

// PrintCache renders cache i's lines to w, in the spirit of the
// original implementation's tabular cache dump.
func (d *Driver) PrintCache(i int, w io.Writer) error {
	c, err := d.CacheByIndex(i)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s (%d lines):\n", c.Name(), c.LineCount())
	fmt.Fprintf(w, "%-3s | %-18s | %-5s | %-3s | %s\n", "#", "block", "state", "use", "data")
	for idx, l := range c.Lines() {
		fmt.Fprintf(w, "%-3d | %#018x | %-5s | %-3d | % 02x\n", idx, l.Block, l.State, l.Use, l.Data)
	}

	stats := c.Stats()
	fmt.Fprintf(w, "reads=%d writes=%d hits=%d misses=%d evictions=%d writebacks=%d\n",
		stats.Reads, stats.Writes, stats.Hits, stats.Misses, stats.Evictions, stats.Writebacks)
	fmt.Fprintln(w)
	return nil
}

// PrintMemory renders every materialized memory block to w.
func (d *Driver) PrintMemory(w io.Writer) {
	blocks := d.memory.Blocks()
	fmt.Fprintf(w, "\nMemory (%d materialized blocks):\n", len(blocks))
	for _, block := range blocks {
		fmt.Fprintf(w, "%#018x: % 02x\n", block, d.memory.ReadBlock(block))
	}
	fmt.Fprintln(w)
}

// errUnknownCommand is returned by dispatchCommand for anything the
// REPL grammar doesn't recognize.
var errUnknownCommand = errors.New("driver: unknown command")
