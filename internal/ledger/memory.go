package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger for tests and single-node
// deployments without Redis. Entries live in a slice guarded by a mutex;
// the slice is append-only.
type MemoryLedger struct {
	mu       sync.Mutex
	records  []Record
	lastHash string
	seq      uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(ctx context.Context, entry Entry) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	l.seq++
	hash := chainHash(l.lastHash, l.seq, entry, now)

	receipt := Receipt{
		ReceiptID:   uuid.NewString(),
		Sequence:    l.seq,
		ContentHash: hash,
		RecordedAt:  now,
	}
	l.records = append(l.records, Record{Entry: entry, Receipt: receipt})
	l.lastHash = hash
	return receipt, nil
}

func (l *MemoryLedger) Find(ctx context.Context, entityType EntityType, entityID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for _, r := range l.records {
		if r.Entry.EntityType == entityType && r.Entry.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len reports how many entries have been recorded.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
