package optimize

import (
	"testing"
)

func TestBytePool(t *testing.T) {
	pool := NewBytePool(1024)

	// Get buffer
	buf := pool.Get()
	if len(buf) != 0 {
		t.Errorf("expected zero-length buffer, got %d", len(buf))
	}
	if cap(buf) < 1024 {
		t.Errorf("expected capacity >= 1024, got %d", cap(buf))
	}

	// Append and put back
	buf = append(buf, make([]byte, 512)...)
	pool.Put(buf)

	// Get again (should reuse)
	buf2 := pool.Get()
	if len(buf2) != 0 {
		t.Errorf("expected zero-length buffer after reuse, got %d", len(buf2))
	}
}

func TestBytePool_DropsOversized(t *testing.T) {
	pool := NewBytePool(64)

	// A buffer grown far beyond base capacity must not be retained
	big := make([]byte, 0, 64*8)
	pool.Put(big)

	got := pool.Get()
	if cap(got) > 64*4 {
		t.Errorf("expected oversized buffer dropped, got cap %d", cap(got))
	}
}

func TestPreAllocateSlice(t *testing.T) {
	// Test with length and capacity
	s := PreAllocateSlice[int](5, 10)
	if len(s) != 5 {
		t.Errorf("expected length 5, got %d", len(s))
	}
	if cap(s) != 10 {
		t.Errorf("expected capacity 10, got %d", cap(s))
	}

	// Test with capacity less than length
	s2 := PreAllocateSlice[int](10, 5)
	if len(s2) != 10 {
		t.Errorf("expected length 10, got %d", len(s2))
	}
	if cap(s2) < 10 {
		t.Errorf("expected capacity >= 10, got %d", cap(s2))
	}
}
