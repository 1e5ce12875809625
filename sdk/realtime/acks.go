package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AckFunc receives the reply to an ack-bearing request, or the error that
// evicted it (errcode.ErrAckTimeout, errcode.ErrDisconnected, ErrClosed).
// It always runs on the dispatcher.
type AckFunc func(reply json.RawMessage, err error)

type pendingAck struct {
	event string
	cb    AckFunc
	timer clockwork.Timer
}

// ackTable correlates outstanding requests with their replies by ack id
type ackTable struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	pending map[string]*pendingAck
}

func newAckTable(clock clockwork.Clock) *ackTable {
	return &ackTable{clock: clock, pending: make(map[string]*pendingAck)}
}

// add registers id and arms its eviction timer. onTimeout is called from
// the timer goroutine and must hand off to the dispatcher.
func (t *ackTable) add(id, event string, timeout time.Duration, cb AckFunc, onTimeout func(id string)) {
	p := &pendingAck{event: event, cb: cb}
	t.mu.Lock()
	t.pending[id] = p
	p.timer = t.clock.AfterFunc(timeout, func() { onTimeout(id) })
	t.mu.Unlock()
}

// take removes and returns the entry for id. A second take of the same id
// returns nil, which is how duplicate replies are dropped.
func (t *ackTable) take(id string) *pendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	p.timer.Stop()
	return p
}

// drain removes every entry and returns them
func (t *ackTable) drain() []*pendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*pendingAck, 0, len(t.pending))
	for id, p := range t.pending {
		p.timer.Stop()
		out = append(out, p)
		delete(t.pending, id)
	}
	return out
}

func (t *ackTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
