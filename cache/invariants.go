package cache

import "fmt"

// AssertInvariants mechanically checks the coherence invariants that
// must hold across every cache between external steps: single-writer
// exclusivity, tag uniqueness within a cache, the LRU permutation, and
// at-most-one-pending-line-per-cache. It is a test helper, not a
// production assertion — nothing in the simulator calls it at
// runtime.
func AssertInvariants(caches ...*Cache) error {
	type owner struct {
		cacheName string
		state     MESIState
	}
	byBlock := map[uint64][]owner{}

	for _, c := range caches {
		seenBlocks := map[uint64]bool{}
		pendingCount := 0
		useRanks := make([]bool, len(c.lines))

		for _, l := range c.lines {
			if l.Pending {
				pendingCount++
			}

			if l.Use < 0 || l.Use >= len(c.lines) || useRanks[l.Use] {
				return fmt.Errorf("cache %s: use ranks are not a permutation of [0, %d)", c.name, len(c.lines))
			}
			useRanks[l.Use] = true

			if l.State == Invalid {
				continue
			}

			if seenBlocks[l.Block] {
				return fmt.Errorf("cache %s: block %#x tagged by more than one non-Invalid line", c.name, l.Block)
			}
			seenBlocks[l.Block] = true

			byBlock[l.Block] = append(byBlock[l.Block], owner{c.name, l.State})
		}

		if pendingCount > 1 {
			return fmt.Errorf("cache %s: %d lines pending, want at most 1", c.name, pendingCount)
		}
	}

	for block, owners := range byBlock {
		modified, exclusive := 0, 0
		for _, o := range owners {
			switch o.state {
			case Modified:
				modified++
			case Exclusive:
				exclusive++
			}
		}
		if modified > 1 {
			return fmt.Errorf("block %#x: held Modified by %d caches", block, modified)
		}
		if modified == 1 && len(owners) > 1 {
			return fmt.Errorf("block %#x: Modified in one cache but also present in %d caches", block, len(owners))
		}
		if exclusive > 1 {
			return fmt.Errorf("block %#x: held Exclusive by %d caches", block, exclusive)
		}
		if exclusive == 1 && len(owners) > 1 {
			return fmt.Errorf("block %#x: Exclusive in one cache but also present in %d caches", block, len(owners))
		}
	}
	return nil
}
