package delivery

import (
	"sort"
	"sync"

	contracts "notifyhub/contracts/mq"
)

// batchBuffer accumulates batch-flagged messages until a size threshold or
// the drain ticker empties it. Contents are process-local and lost on
// crash.
type batchBuffer struct {
	mu   sync.Mutex
	msgs []contracts.NotificationMessage
	size int
}

func newBatchBuffer(size int) *batchBuffer {
	return &batchBuffer{size: size}
}

// Add appends msg and, when the threshold is reached, returns the drained
// batch ready for delivery. Returns nil while the buffer is still filling.
func (b *batchBuffer) Add(msg contracts.NotificationMessage) []contracts.NotificationMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	if len(b.msgs) < b.size {
		return nil
	}
	return b.drainLocked()
}

// Drain empties the buffer regardless of size.
func (b *batchBuffer) Drain() []contracts.NotificationMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked()
}

func (b *batchBuffer) drainLocked() []contracts.NotificationMessage {
	if len(b.msgs) == 0 {
		return nil
	}
	out := b.msgs
	b.msgs = nil
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

func (b *batchBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}
