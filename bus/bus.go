// Package bus provides the broadcast fabric connecting caches to each
// other and to main memory: a single-threaded dispatcher that snoops
// every message to all peers before deciding whether memory needs to
// be touched.
package bus

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/mem"
)

// MessageKind tags the four bus transaction types.
type MessageKind int

const (
	// Read requests a block for a load. A peer holding it may supply
	// the data (cache-to-cache transfer); otherwise memory is read.
	Read MessageKind = iota
	// ReadForWrite requests a block for a store miss. Behaves like
	// Read for data sourcing, but invalidates peers instead of
	// sharing.
	ReadForWrite
	// Upgrade asks peers to invalidate a block the sender already
	// holds Shared, without requesting data.
	Upgrade
	// Writeback flushes a dirty block to memory. Carries Data.
	Writeback
)

// String renders a MessageKind for logging and pretty-printing.
func (k MessageKind) String() string {
	switch k {
	case Read:
		return "READ"
	case ReadForWrite:
		return "READ_FOR_WRITE"
	case Upgrade:
		return "UPGRADE"
	case Writeback:
		return "WRITEBACK"
	default:
		return "UNKNOWN"
	}
}

// Message is a single bus transaction.
type Message struct {
	Kind  MessageKind
	Block uint64
	// Data carries the write-back payload; nil for the other kinds.
	Data []byte
}

// Peer is a snoop target connected to the bus. *cache.Cache satisfies
// this interface structurally, which is what lets bus avoid importing
// cache: the bus owns Peer handles, each cache holds a non-owning
// back-reference to the bus it issues its own messages on.
type Peer interface {
	// ReactToBus observes a message not addressed to this peer.
	// It returns a block-data copy if (and only if) the protocol
	// requires this peer to supply it, and a non-nil error only for
	// ErrPendingTransaction.
	ReactToBus(msg Message) (data []byte, err error)
}

// Bus is the single in-flight-message broadcast fabric.
type Bus struct {
	peers  []Peer
	memory *mem.Memory
	logger zerolog.Logger
}

// New creates a bus backed by memory.
func New(memory *mem.Memory) *Bus {
	return &Bus{
		memory: memory,
		logger: log.With().Str("component", "bus").Logger(),
	}
}

// Connect registers p as a snoop target for future messages.
func (b *Bus) Connect(p Peer) {
	b.peers = append(b.peers, p)
}

// PutMessage serves msg to completion: every peer other than sender is
// offered the message in connection order, then the message is
// dispatched by kind. It returns the data the sender should install
// (nil for Upgrade/Writeback), whether main memory was accessed, and a
// non-nil error only when a peer reported ErrPendingTransaction — in
// that case memory is left untouched and the caller must not assume
// any peer state changed either.
func (b *Bus) PutMessage(sender Peer, msg Message) (data []byte, memoryAccessed bool, err error) {
	var snooped []byte
	for _, p := range b.peers {
		if p == sender {
			continue
		}

		resp, snoopErr := p.ReactToBus(msg)
		if snoopErr != nil {
			return nil, false, snoopErr
		}
		if resp != nil {
			// Multiple legal responders must agree on the value by
			// protocol construction, so keeping the last one seen is
			// as valid a tie-break as keeping the first.
			snooped = resp
		}
	}

	switch msg.Kind {
	case Read, ReadForWrite:
		if snooped != nil {
			b.logger.Debug().Str("kind", msg.Kind.String()).Uint64("block", msg.Block).Msg("served by snoop")
			return snooped, false, nil
		}
		b.logger.Debug().Str("kind", msg.Kind.String()).Uint64("block", msg.Block).Msg("served by memory")
		return b.memory.ReadBlock(msg.Block), true, nil

	case Writeback:
		b.memory.WriteBlock(msg.Block, msg.Data)
		b.logger.Debug().Uint64("block", msg.Block).Msg("writeback committed to memory")
		return nil, true, nil

	case Upgrade:
		b.logger.Debug().Uint64("block", msg.Block).Msg("upgrade invalidated peers")
		return nil, false, nil
	}

	panic("bus: unreachable message kind")
}
