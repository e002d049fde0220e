package batch

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]string
}

func (p *recordingProcessor) ProcessBatch(ctx context.Context, items []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := make([]string, len(items))
	copy(batch, items)
	p.batches = append(p.batches, batch)
	return nil
}

func (p *recordingProcessor) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestBatcher_FlushOnSize(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[string](3, time.Hour, proc)
	defer b.Stop()

	b.Add("a")
	b.Add("b")
	b.Add("c")

	// Size-triggered flush runs on the background goroutine
	deadline := time.After(time.Second)
	for proc.total() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 items flushed, got %d", proc.total())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if b.PendingCount() != 0 {
		t.Errorf("expected empty pending after flush, got %d", b.PendingCount())
	}
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[string](100, 20*time.Millisecond, proc)
	defer b.Stop()

	b.Add("a")

	deadline := time.After(time.Second)
	for proc.total() < 1 {
		select {
		case <-deadline:
			t.Fatal("expected interval flush within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[string](100, time.Hour, proc)

	b.Add("a")
	b.Add("b")
	b.Stop()

	deadline := time.After(time.Second)
	for proc.total() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected final flush on stop, got %d items", proc.total())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBatcher_ManualFlush(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[string](100, time.Hour, proc)
	defer b.Stop()

	b.Add("a")
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if proc.total() != 1 {
		t.Errorf("expected 1 item flushed, got %d", proc.total())
	}
}

func TestProcessorFunc(t *testing.T) {
	var got []int
	p := ProcessorFunc[int](func(ctx context.Context, items []int) error {
		got = append(got, items...)
		return nil
	})

	if err := p.ProcessBatch(context.Background(), []int{1, 2}); err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 items, got %d", len(got))
	}
}
