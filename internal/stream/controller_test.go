package stream

import (
	"context"
	"testing"
	"time"
)

type stubLoader struct {
	engine InferenceContext
}

func (l *stubLoader) Load(modelPath string, numThreads int, gpuRequested bool) (InferenceContext, string, bool, error) {
	return l.engine, "", false, nil
}

func rampSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i%1000) / 1000
	}
	return s
}

// TestControllerSingleChunkUnderMin exercises scenario S1: audio shorter
// than min_chunk_ms is consumed as one EOF-tail chunk, and its one segment
// is emitted with stream-relative timestamps before stream_complete fires.
func TestControllerSingleChunkUnderMin(t *testing.T) {
	engine := &stubEngine{runs: []stubRun{
		{segments: []stubSegment{{t0CS: 0, t1CS: 400, text: "hi"}}},
	}}
	loader := &stubLoader{engine: engine}

	var segments []Segment
	complete := make(chan bool, 1)
	events := Events{
		NewSegment:     func(s Segment) { segments = append(segments, s) },
		StreamComplete: func(success bool) { complete <- success },
		Error:          func(msg string) { t.Errorf("unexpected error event: %s", msg) },
	}

	ctrl := NewController(loader, events)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)
	defer ctrl.Shutdown()

	ctrl.LoadModel(0, "model.bin", 4, false)

	cfg := DefaultConfig()
	cfg.MinChunkMs = 10000
	cfg.ChunkExtendMs = 0
	cfg.OverlapMs = 0

	samples := rampSamples(4 * SampleRate)
	read := sliceReader(samples, 4096)
	ctrl.Start(read, nil, nil, cfg)

	select {
	case success := <-complete:
		if !success {
			t.Fatalf("expected successful completion")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream_complete")
	}

	if len(segments) != 1 {
		t.Fatalf("expected exactly one segment, got %d: %+v", len(segments), segments)
	}
	got := segments[0]
	if got.Text != "hi" || got.T0Ms != 0 || got.T1Ms != 4000 {
		t.Fatalf("unexpected segment: %+v", got)
	}
}

// TestControllerStopSuppressesCompletion exercises scenario S4: stopping a
// session in flight must suppress stream_complete for that session.
func TestControllerStopSuppressesCompletion(t *testing.T) {
	engine := &stubEngine{runs: []stubRun{
		{segments: []stubSegment{{t0CS: 0, t1CS: 100, text: "one"}}},
		{segments: []stubSegment{{t0CS: 0, t1CS: 100, text: "two"}}},
	}}
	loader := &stubLoader{engine: engine}

	segCh := make(chan Segment, 4)
	complete := make(chan bool, 1)
	events := Events{
		NewSegment:     func(s Segment) { segCh <- s },
		StreamComplete: func(success bool) { complete <- success },
	}

	ctrl := NewController(loader, events)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)
	defer ctrl.Shutdown()

	ctrl.LoadModel(0, "model.bin", 4, false)

	cfg := DefaultConfig()
	cfg.MinChunkMs = 1000
	cfg.ChunkExtendMs = 0
	cfg.OverlapMs = 0

	samples := rampSamples(60 * SampleRate)
	read := sliceReader(samples, 4096)
	ctrl.Start(read, nil, nil, cfg)

	select {
	case <-segCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for first segment")
	}

	// Keep draining so the run loop never blocks trying to emit further
	// segments into a full buffered channel once this goroutine stops
	// reading explicitly.
	go func() {
		for range segCh {
		}
	}()

	ctrl.Stop()

	select {
	case <-complete:
		t.Fatalf("stream_complete must not fire after stop")
	case <-time.After(200 * time.Millisecond):
	}
}
