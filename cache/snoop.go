package cache

import "github.com/sarchlab/mesisim/bus"

// ReactToBus is the bus-side entry point: it observes a message this
// cache did not send and reacts per the MESI snoop table. It
// implements bus.Peer.
func (c *Cache) ReactToBus(msg bus.Message) ([]byte, error) {
	if msg.Kind == bus.Writeback {
		// Writeback isn't in the snoop reaction table: no cache
		// changes state in response to a peer's own flush.
		return nil, nil
	}

	idx := c.find(msg.Block)
	if idx < 0 {
		return nil, nil
	}

	line := c.lines[idx]
	if line.State == Invalid {
		return nil, nil
	}

	if line.Pending {
		return nil, bus.ErrPendingTransaction
	}

	switch line.State {
	case Shared:
		switch msg.Kind {
		case bus.Read:
			return nil, nil
		case bus.ReadForWrite, bus.Upgrade:
			line.State = Invalid
			return nil, nil
		}

	case Exclusive:
		switch msg.Kind {
		case bus.Read:
			data := copyBytes(line.Data)
			line.State = Shared
			return data, nil
		case bus.ReadForWrite:
			data := copyBytes(line.Data)
			line.State = Invalid
			return data, nil
		case bus.Upgrade:
			panic(&bus.InvariantViolationError{
				Block: msg.Block, State: line.State, Kind: msg.Kind,
				Message: "UPGRADE observed while a peer holds Exclusive",
			})
		}

	case Modified:
		switch msg.Kind {
		case bus.Upgrade:
			panic(&bus.InvariantViolationError{
				Block: msg.Block, State: line.State, Kind: msg.Kind,
				Message: "UPGRADE observed while a peer holds Modified",
			})
		default: // Read or ReadForWrite
			data := copyBytes(line.Data)
			c.bus.PutMessage(c, bus.Message{Kind: bus.Writeback, Block: line.Block, Data: copyBytes(line.Data)})
			c.stats.Writebacks++
			if msg.Kind == bus.ReadForWrite {
				line.State = Invalid
			} else {
				line.State = Shared
			}
			return data, nil
		}
	}

	return nil, nil
}

func copyBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
