package batch

import (
	"context"
	"sync"
	"time"
)

// Processor processes a batch of items
type Processor[T any] interface {
	ProcessBatch(ctx context.Context, items []T) error
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc[T any] func(ctx context.Context, items []T) error

func (f ProcessorFunc[T]) ProcessBatch(ctx context.Context, items []T) error {
	return f(ctx, items)
}

// Batcher collects items and hands them to the processor in batches,
// either when the batch fills or on the flush interval.
type Batcher[T any] struct {
	batchSize     int
	batchInterval time.Duration
	mu            sync.Mutex
	pending       []T
	flushChan     chan struct{}
	stopChan      chan struct{}
	stopOnce      sync.Once
	processor     Processor[T]
}

// NewBatcher creates a new batcher
func NewBatcher[T any](batchSize int, batchInterval time.Duration, processor Processor[T]) *Batcher[T] {
	b := &Batcher[T]{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		pending:       make([]T, 0, batchSize),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		processor:     processor,
	}

	go b.run()

	return b
}

// Add adds an item to the batch
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	shouldFlush := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}
}

// Flush immediately processes all pending items
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}

	items := make([]T, len(b.pending))
	copy(items, b.pending)
	b.pending = b.pending[:0]
	b.mu.Unlock()

	return b.processor.ProcessBatch(ctx, items)
}

// run processes batches periodically
func (b *Batcher[T]) run() {
	ticker := time.NewTicker(b.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = b.Flush(context.Background())
		case <-b.flushChan:
			_ = b.Flush(context.Background())
		case <-b.stopChan:
			// Final flush on stop
			_ = b.Flush(context.Background())
			return
		}
	}
}

// Stop stops the batcher and flushes remaining items
func (b *Batcher[T]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
}

// PendingCount returns the number of pending items
func (b *Batcher[T]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
