package stream

import "testing"

func TestCheckGapRejectsShortSilence(t *testing.T) {
	if pos := checkGap(100, 110, 0, 1000, 300); pos != -1 {
		t.Fatalf("expected -1 for gap shorter than min_silence_ms, got %d", pos)
	}
}

func TestCheckGapClampsToRange(t *testing.T) {
	// Gap [100cs, 500cs) is 400cs = 4000ms wide, well past a 300ms floor, but
	// its midpoint (300cs) must still clamp into [150, 250].
	pos := checkGap(100, 500, 150, 250, 300)
	if pos == -1 {
		t.Fatalf("expected a valid cut point")
	}
	gotCS := int64(pos) * 100 / SampleRate
	if gotCS < 150 || gotCS > 250 {
		t.Fatalf("cut point %dcs not clamped into range", gotCS)
	}
}

func TestFindChunkBoundaryForcedWhenNoSilenceInfo(t *testing.T) {
	min := SampleRate * 10
	max := SampleRate * 20
	boundary, silenceMs := findChunkBoundary(min, max, max, nil, 0, 300)
	if boundary != min {
		t.Fatalf("expected forced cut at min_chunk_samples, got %d", boundary)
	}
	if silenceMs != 0 {
		t.Fatalf("expected no silence credit, got %d", silenceMs)
	}
}

func TestFindChunkBoundaryUsesAvailableWhenShort(t *testing.T) {
	min := SampleRate * 10
	max := SampleRate * 20
	available := SampleRate * 5
	boundary, _ := findChunkBoundary(min, max, available, nil, 0, 300)
	if boundary != available {
		t.Fatalf("expected boundary clamped to available, got %d", boundary)
	}
}

func TestFindChunkBoundaryPicksSilenceGap(t *testing.T) {
	min := SampleRate * 10
	max := SampleRate * 20
	available := max

	// Speech from 0-1000cs, silence 1000-1400cs (4000ms, >= min_silence_ms),
	// then speech again. vad_offset is 0 for this test.
	intervals := []SpeechInterval{
		{StartCS: 0, EndCS: 1000},
		{StartCS: 1400, EndCS: 1800},
	}

	boundary, silenceMs := findChunkBoundary(min, max, available, intervals, 0, 300)
	if silenceMs != 300 {
		t.Fatalf("expected silence credit of min_silence_ms, got %d", silenceMs)
	}
	gotCS := int64(boundary) * 100 / SampleRate
	if gotCS < 1000 || gotCS > 1400 {
		t.Fatalf("expected cut inside the silence gap, got %dcs", gotCS)
	}
}
