package stream

import "testing"

func loudSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.5
		} else {
			s[i] = -0.5
		}
	}
	return s
}

func TestEnergyVADDetectsSpeechAboveThreshold(t *testing.T) {
	v := newEnergyVAD()
	samples := loudSamples(SampleRate) // 1s loud
	intervals, err := v.DetectSpeech(samples, VADParams{Threshold: 0.25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("expected one speech interval, got %d", len(intervals))
	}
	if intervals[0].StartCS != 0 {
		t.Fatalf("expected interval to start at 0, got %d", intervals[0].StartCS)
	}
}

func TestEnergyVADSilentReturnsNil(t *testing.T) {
	v := newEnergyVAD()
	samples := make([]float32, SampleRate) // all zero
	intervals, err := v.DetectSpeech(samples, VADParams{Threshold: 0.25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intervals != nil {
		t.Fatalf("expected no intervals for silence, got %v", intervals)
	}
}

func TestRunVADWindowStartsBeforeMinChunk(t *testing.T) {
	minChunkSamples := 10 * SampleRate
	maxChunkSamples := 20 * SampleRate
	buf := newRingBuffer(maxChunkSamples + SampleRate)
	buf.samples = append(buf.samples, make([]float32, maxChunkSamples)...)

	var seenLen int
	stub := vadFunc(func(samples []float32, params VADParams) ([]SpeechInterval, error) {
		seenLen = len(samples)
		return nil, nil
	})

	_, vadOffset := runVAD(stub, buf, 0, minChunkSamples, maxChunkSamples, VADParams{Threshold: 0.25, MinSilenceMs: 300})

	wantOffset := minChunkSamples - 5*SampleRate
	if vadOffset != wantOffset {
		t.Fatalf("expected vad window to start 5s before min chunk (%d), got %d", wantOffset, vadOffset)
	}
	if seenLen == 0 {
		t.Fatalf("expected VAD to be invoked with a nonempty window")
	}
}

// vadFunc adapts a plain function to VADSegmenter for tests.
type vadFunc func([]float32, VADParams) ([]SpeechInterval, error)

func (f vadFunc) DetectSpeech(samples []float32, params VADParams) ([]SpeechInterval, error) {
	return f(samples, params)
}
