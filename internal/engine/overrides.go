package engine

import "sync"

// Command is a manual override queued for the next step.
type Command string

const (
	CmdSellAll Command = "SELL_ALL"
	CmdBuyMax  Command = "BUY_MAX"
)

// overrideQueue holds pending manual commands. A command is queued at most
// once and consumed at most once. Liquidation is always taken first, so a
// pending buy-max waits for the following step.
type overrideQueue struct {
	mu      sync.Mutex
	pending []Command
}

// push queues c and reports whether it was not already pending.
func (q *overrideQueue) push(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pending {
		if p == c {
			return false
		}
	}
	q.pending = append(q.pending, c)
	return true
}

func (q *overrideQueue) take() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	at := 0
	for i, p := range q.pending {
		if p == CmdSellAll {
			at = i
			break
		}
	}
	c := q.pending[at]
	q.pending = append(q.pending[:at], q.pending[at+1:]...)
	return c, true
}

func (q *overrideQueue) list() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Command, len(q.pending))
	copy(out, q.pending)
	return out
}
