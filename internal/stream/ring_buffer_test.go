package stream

import "testing"

func TestRingBufferFillStopsAtTarget(t *testing.T) {
	r := newRingBuffer(100)
	var fed int
	read := func(buf []float32) int {
		for i := range buf {
			buf[i] = float32(fed + i)
		}
		n := len(buf)
		if n > 10 {
			n = 10
		}
		fed += n
		return n
	}

	n, eof := r.fill(25, read)
	if eof {
		t.Fatalf("unexpected eof")
	}
	if n < 25 {
		t.Fatalf("fill stopped short: got %d", n)
	}
}

func TestRingBufferFillObservesEOF(t *testing.T) {
	r := newRingBuffer(100)
	calls := 0
	read := func(buf []float32) int {
		calls++
		if calls == 1 {
			buf[0] = 1
			return 1
		}
		return 0
	}

	n, eof := r.fill(50, read)
	if !eof {
		t.Fatalf("expected eof")
	}
	if n != 1 {
		t.Fatalf("expected 1 sample buffered, got %d", n)
	}
}

func TestRingBufferAdvanceKeepsOverlap(t *testing.T) {
	r := newRingBuffer(20)
	r.samples = append(r.samples, make([]float32, 10)...)
	for i := range r.samples {
		r.samples[i] = float32(i)
	}

	streamEOF := r.advance(8, 3, false)
	if streamEOF {
		t.Fatalf("did not expect stream eof")
	}
	if r.len() != 5 { // 10 - (8-3)
		t.Fatalf("expected 5 samples kept, got %d", r.len())
	}
	if r.samples[0] != 5 {
		t.Fatalf("expected buffer to start at sample 5, got %v", r.samples[0])
	}
}

func TestRingBufferAdvanceDetectsStreamEOF(t *testing.T) {
	r := newRingBuffer(20)
	r.samples = append(r.samples, make([]float32, 5)...)

	streamEOF := r.advance(5, 3, true)
	if !streamEOF {
		t.Fatalf("expected stream eof once remaining <= overlap")
	}
}

func TestRingBufferCopyOut(t *testing.T) {
	r := newRingBuffer(10)
	r.samples = append(r.samples, 1, 2, 3, 4)

	out := r.copyOut(nil, 3)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("unexpected copyOut result: %v", out)
	}
}
