// Package core implements the per-CPU state machine that drives one
// cache from a trace of memory references, one action per tick.
package core

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/bus"
	"github.com/sarchlab/mesisim/cache"
	"github.com/sarchlab/mesisim/trace"
)

// State is one of the three core lifecycle states.
type State int

const (
	// Ready: either retrying a held instruction or about to pull the
	// next one from the trace.
	Ready State = iota
	// WaitingForMemory: a miss is being simulated; wait_remaining
	// ticks down to zero before the core returns to Ready.
	WaitingForMemory
	// Finished: the trace is exhausted; further ticks are no-ops.
	Finished
)

// String renders a State for logging.
func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case WaitingForMemory:
		return "WaitingForMemory"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Core drives c from the references pulled out of src, one per Ready
// tick, with an at-most-one-deep retry slot for instructions aborted
// by a pending-transaction condition.
type Core struct {
	name       string
	cache      *cache.Cache
	src        *trace.Scanner
	waitCycles int

	state         State
	waitRemaining int
	retry         *trace.Reference

	logger zerolog.Logger
}

// NewCore creates a core named name, driving cache c with references
// pulled from src. waitCycles is the number of WaitingForMemory ticks
// charged for each miss that reaches main memory.
func NewCore(name string, c *cache.Cache, src *trace.Scanner, waitCycles int) *Core {
	return &Core{
		name:       name,
		cache:      c,
		src:        src,
		waitCycles: waitCycles,
		state:      Ready,
		logger:     log.With().Str("component", "core").Str("core", name).Logger(),
	}
}

// Name returns the core's identifying label (e.g. "core1").
func (c *Core) Name() string {
	return c.name
}

// State returns the core's current lifecycle state.
func (c *Core) State() State {
	return c.state
}

// Tick executes at most one action for this core: retrying or pulling
// the next reference while Ready, counting down while
// WaitingForMemory, or doing nothing while Finished. The returned
// error is non-nil only for a condition the core itself cannot
// recover from; ErrPendingTransaction from the cache is consumed
// internally by arming a retry.
func (c *Core) Tick() error {
	switch c.state {
	case Finished:
		return nil

	case WaitingForMemory:
		c.waitRemaining--
		if c.waitRemaining <= 0 {
			c.cache.ClearPending()
			c.state = Ready
			c.logger.Debug().Msg("memory wait elapsed, ready")
		}
		return nil

	case Ready:
		return c.tickReady()
	}

	return nil
}

func (c *Core) tickReady() error {
	var ref trace.Reference
	if c.retry != nil {
		ref = *c.retry
		c.logger.Debug().Int("line", ref.Line).Msg("retrying instruction")
	} else {
		next, ok := c.src.Next()
		if !ok {
			c.state = Finished
			c.logger.Debug().Msg("trace exhausted")
			return nil
		}
		ref = next
	}

	var pending bool
	var err error

	switch ref.Kind {
	case trace.Read:
		_, _, pending, err = c.cache.CPURead(ref.Address)
	case trace.Write:
		_, pending, err = c.cache.CPUWrite(ref.Address, ref.Value)
	case trace.Nop:
		// no-op; falls through to retry-clear and stays Ready.
	}

	if err != nil {
		if errors.Is(err, bus.ErrPendingTransaction) {
			c.retry = &ref
			c.logger.Debug().Int("line", ref.Line).Msg("pending transaction, arming retry")
			return nil
		}
		return err
	}

	c.retry = nil
	if pending {
		c.state = WaitingForMemory
		c.waitRemaining = c.waitCycles
		c.logger.Debug().Int("cycles", c.waitCycles).Msg("miss reached memory, waiting")
	}
	return nil
}
