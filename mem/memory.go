// Package mem provides the main-memory model: a sparse, block-addressed
// store that lazily materializes blocks with pseudo-random bytes on
// first access and stays stable thereafter.
package mem

import (
	"math/rand"
	"sort"
)

// BlockAddress maps addr to the start address of the B-byte block that
// contains it: block = addr - (addr mod B).
func BlockAddress(addr, blockSize uint64) uint64 {
	return addr - (addr % blockSize)
}

// Offset returns the byte offset of addr within its block.
func Offset(addr, blockSize uint64) uint64 {
	return addr % blockSize
}

// Memory is a sparse block → bytes map. It is not safe for concurrent
// use; the simulator only ever touches it from the single goroutine
// driving the bus.
type Memory struct {
	blockSize int
	blocks    map[uint64][]byte
	rng       *rand.Rand
}

// NewMemory creates an empty memory with the given block size, seeded
// for reproducible random block initialization.
func NewMemory(blockSize int, seed int64) *Memory {
	return &Memory{
		blockSize: blockSize,
		blocks:    make(map[uint64][]byte),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// BlockSize returns the configured block size in bytes.
func (m *Memory) BlockSize() int {
	return m.blockSize
}

// ReadBlock returns a fresh, independent copy of the B bytes stored at
// block. An absent block is materialized with uniformly random bytes
// before being copied out.
func (m *Memory) ReadBlock(block uint64) []byte {
	data, ok := m.blocks[block]
	if !ok {
		data = m.materialize()
		m.blocks[block] = data
	}

	out := make([]byte, m.blockSize)
	copy(out, data)
	return out
}

// WriteBlock replaces (or creates) the entry at block with data.
// Ownership of data transfers to Memory; callers must not retain or
// mutate it afterward.
func (m *Memory) WriteBlock(block uint64, data []byte) {
	m.blocks[block] = data
}

// Materialized reports whether block has been touched at least once.
// It does not materialize block itself.
func (m *Memory) Materialized(block uint64) bool {
	_, ok := m.blocks[block]
	return ok
}

// Blocks returns the set of materialized block addresses in ascending
// order, for deterministic pretty-printing.
func (m *Memory) Blocks() []uint64 {
	out := make([]uint64, 0, len(m.blocks))
	for b := range m.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Memory) materialize() []byte {
	data := make([]byte, m.blockSize)
	for i := range data {
		data[i] = byte(m.rng.Intn(256))
	}
	return data
}
