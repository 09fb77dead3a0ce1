package ring

import (
	"testing"
)

func TestNewRoundsToPowerOf2(t *testing.T) {
	tests := []struct {
		input    uint64
		expected uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{4800, 8192},
	}

	for _, tt := range tests {
		r := New[float32](tt.input)
		if r.Size() != tt.expected {
			t.Errorf("New(%d): got size %d, want %d", tt.input, r.Size(), tt.expected)
		}
	}
}

func TestWriteReadBytes(t *testing.T) {
	r := New[byte](16)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	n := r.Write(data)
	if n != len(data) {
		t.Fatalf("Write: got %d, want %d", n, len(data))
	}
	if r.AvailableRead() != 8 {
		t.Errorf("AvailableRead: got %d, want 8", r.AvailableRead())
	}

	out := make([]byte, 8)
	n = r.Read(out)
	if n != 8 {
		t.Fatalf("Read: got %d, want 8", n)
	}
	for i := range data {
		if out[i] != data[i] {
			t.Errorf("byte %d: got %d, want %d", i, out[i], data[i])
		}
	}
}

func TestWrapAround(t *testing.T) {
	r := New[float32](8)

	// Fill to 6, drain all 6, then write 6 more so both the write and the
	// following read wrap past the end of the buffer.
	r.Write(make([]float32, 6))
	drained := make([]float32, 6)
	r.Read(drained)

	in := make([]float32, 6)
	for i := range in {
		in[i] = float32(i + 1)
	}
	n := r.Write(in)
	if n != 6 {
		t.Fatalf("wrapped write: got %d, want 6", n)
	}

	out := make([]float32, 6)
	n = r.Read(out)
	if n != 6 {
		t.Fatalf("wrapped read: got %d, want 6", n)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestPartialWriteWhenFull(t *testing.T) {
	r := New[byte](4)

	n := r.Write([]byte{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Fatalf("partial write: got %d, want 4 (ring capacity)", n)
	}
	if r.AvailableWrite() != 0 {
		t.Errorf("AvailableWrite: got %d, want 0", r.AvailableWrite())
	}
}

func TestReserveCommitSplitView(t *testing.T) {
	r := New[byte](8)

	// Push the write cursor to 5, then fully drain, so the next 5-slot
	// reservation starts at offset 5 and wraps past the end of the buffer.
	first, _, total := r.Reserve(5)
	if total != 5 {
		t.Fatalf("initial reserve: got total %d, want 5", total)
	}
	r.Commit(5)
	drained := make([]byte, 5)
	r.Read(drained)

	first, second, total := r.Reserve(5)
	if total != 5 {
		t.Fatalf("wrapped reserve: got total %d, want 5", total)
	}
	if second == nil {
		t.Fatalf("expected a split reservation once the write cursor wraps")
	}
	if len(first)+len(second) != 5 {
		t.Errorf("split reserve: first=%d second=%d, want sum 5", len(first), len(second))
	}
}

func TestReadWriteNeverOverestimate(t *testing.T) {
	r := New[byte](16)
	if r.AvailableRead() != 0 {
		t.Errorf("empty ring AvailableRead: got %d, want 0", r.AvailableRead())
	}
	if r.AvailableWrite() != 16 {
		t.Errorf("empty ring AvailableWrite: got %d, want 16", r.AvailableWrite())
	}
}
