// Package feed adapts the external position feed to the engine's polling
// ingestion loop. Reports pushed over NATS accumulate in a bounded buffer;
// each poll tick drains the buffer as one batch.
package feed

import (
	"context"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// Source yields batches of position reports on demand.
type Source interface {
	Fetch(ctx context.Context) ([]types.PositionReport, error)
}

// Buffer is a bounded push-to-poll adapter. Push never blocks: when the
// buffer is full the oldest pending report is discarded, since a fresher
// report for the same airspace supersedes it anyway.
type Buffer struct {
	ch chan types.PositionReport
}

// NewBuffer creates a buffer holding up to capacity pending reports.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{ch: make(chan types.PositionReport, capacity)}
}

// Push queues a report for the next poll, dropping the oldest pending
// report when full. It reports whether anything was discarded.
func (b *Buffer) Push(report types.PositionReport) bool {
	dropped := false
	for {
		select {
		case b.ch <- report:
			return dropped
		default:
			select {
			case <-b.ch:
				dropped = true
			default:
			}
		}
	}
}

// PushAll queues a batch, returning how many pending reports were
// discarded to make room.
func (b *Buffer) PushAll(reports []types.PositionReport) int {
	dropped := 0
	for _, r := range reports {
		if b.Push(r) {
			dropped++
		}
	}
	return dropped
}

// Fetch drains all currently pending reports. It returns immediately with
// whatever is queued; an empty batch is a normal result. The context is
// honored so a slow consumer cannot stall an ingestion cycle.
func (b *Buffer) Fetch(ctx context.Context) ([]types.PositionReport, error) {
	var batch []types.PositionReport
	for {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case r := <-b.ch:
			batch = append(batch, r)
		default:
			return batch, nil
		}
	}
}

// Pending returns the number of queued reports.
func (b *Buffer) Pending() int {
	return len(b.ch)
}
