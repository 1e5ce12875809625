package presence

import (
	"sort"
	"sync"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// ReceiptLedger is an append-only record of read receipts per
// (user, message). Receipts may arrive in any order.
type ReceiptLedger struct {
	mu     sync.RWMutex
	byUser map[string]map[string]entity.ReadReceipt
}

// NewReceiptLedger creates an empty ReceiptLedger
func NewReceiptLedger() *ReceiptLedger {
	return &ReceiptLedger{byUser: make(map[string]map[string]entity.ReadReceipt)}
}

// Record appends a receipt. The first receipt for a (user, message) wins;
// it reports whether this one was new.
func (l *ReceiptLedger) Record(r entity.ReadReceipt) bool {
	if r.UserId == "" || r.MessageId == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs, ok := l.byUser[r.UserId]
	if !ok {
		msgs = make(map[string]entity.ReadReceipt)
		l.byUser[r.UserId] = msgs
	}
	if _, dup := msgs[r.MessageId]; dup {
		return false
	}
	msgs[r.MessageId] = r
	return true
}

// Get returns the receipt of a user for a message
func (l *ReceiptLedger) Get(userId, messageId string) (entity.ReadReceipt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byUser[userId][messageId]
	return r, ok
}

// Readers returns the users that read a message, ordered by read time
func (l *ReceiptLedger) Readers(messageId string) []entity.ReadReceipt {
	l.mu.RLock()
	var out []entity.ReadReceipt
	for _, msgs := range l.byUser {
		if r, ok := msgs[messageId]; ok {
			out = append(out, r)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReadAt == out[j].ReadAt {
			return out[i].UserId < out[j].UserId
		}
		return out[i].ReadAt < out[j].ReadAt
	})
	return out
}

// ReadIn returns the receipts a user has in a conversation
func (l *ReceiptLedger) ReadIn(userId, conversationId string) []entity.ReadReceipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []entity.ReadReceipt
	for _, r := range l.byUser[userId] {
		if r.ConversationId == conversationId {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadAt < out[j].ReadAt })
	return out
}
