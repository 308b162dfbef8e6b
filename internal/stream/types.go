// Package stream implements the chunked streaming transcription scheduler:
// voice-activity-aligned chunk boundary selection, a ping-pong dual-worker
// inference protocol that threads decoder context across chunks, and a
// session/cancellation model safe against mid-stream stop.
package stream

import "fmt"

// SampleRate is the fixed PCM sample rate the scheduler operates at. The
// inference engine and VAD model both assume 16kHz mono input.
const SampleRate = 16000

// Config holds the tunable stream parameters of a single run, corresponding
// to the enumerated options of spec §6.
type Config struct {
	MinChunkMs    int     // minimum new audio per chunk
	ChunkExtendMs int     // additional lookahead past min for silence search
	OverlapMs     int     // overlap between adjacent chunks
	MinSilenceMs  int     // minimum silence width accepted as a cut
	VADThreshold  float32 // VAD probability threshold

	NumThreads int    // not read by the scheduler: each slot runs with the thread count given to Controller.LoadModel (1 for slot 0 when its GPU is active)
	Language   string // "auto" or an ISO language tag
	Translate  bool
	LiveMode   bool
}

// DefaultConfig returns the file-mode preset of spec §6 (ChunkExtendMs=30000,
// VADThreshold=0.25) — the wider lookahead and more permissive VAD threshold
// that a bounded, already-fully-buffered file favors over live latency. Use
// LiveConfig for the live-mode preset's tighter, lower-latency values.
func DefaultConfig() Config {
	return Config{
		MinChunkMs:    30000,
		ChunkExtendMs: 30000,
		OverlapMs:     300,
		MinSilenceMs:  300,
		VADThreshold:  0.25,
		NumThreads:    4,
		Language:      "auto",
	}
}

// LiveConfig returns the live-mode defaults from spec §6.
func LiveConfig() Config {
	cfg := DefaultConfig()
	cfg.MinChunkMs = 10000
	cfg.ChunkExtendMs = 20000
	cfg.VADThreshold = 0.5
	cfg.LiveMode = true
	return cfg
}

func (c Config) minChunkSamples() int {
	return SampleRate * c.MinChunkMs / 1000
}

func (c Config) maxChunkSamples() int {
	return c.minChunkSamples() + SampleRate*c.ChunkExtendMs/1000
}

func (c Config) overlapSamples() int {
	return SampleRate * c.OverlapMs / 1000
}

// Segment is one emitted piece of transcript, timestamped relative to
// stream start.
type Segment struct {
	Text        string
	T0Ms        int64
	T1Ms        int64
	LanguageTag string
}

// Events is the set of host-facing callbacks (spec §6). Loaded, Error and
// StreamComplete are invoked on the controller's owner goroutine.
// NewSegment and Progress are invoked by the worker that produced them: the
// owner goroutine for worker 0, and in dual-worker mode a separate goroutine
// for worker 1, so those two callbacks may run concurrently. The host must
// not reenter the controller from inside one.
type Events struct {
	Loaded         func(slot int, gpuDescription string, gpuActive bool)
	Progress       func(percent int)
	NewSegment     func(seg Segment)
	StreamComplete func(success bool)
	Error          func(message string)
}

func (e Events) loaded(slot int, desc string, active bool) {
	if e.Loaded != nil {
		e.Loaded(slot, desc, active)
	}
}

func (e Events) progress(p int) {
	if e.Progress != nil {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		e.Progress(p)
	}
}

func (e Events) newSegment(s Segment) {
	if e.NewSegment != nil {
		e.NewSegment(s)
	}
}

func (e Events) streamComplete(success bool) {
	if e.StreamComplete != nil {
		e.StreamComplete(success)
	}
}

func (e Events) error(format string, args ...interface{}) {
	if e.Error != nil {
		e.Error(fmt.Sprintf(format, args...))
	}
}

// ReadAudio is the host-supplied pull callback (spec §6): it writes up to
// len(buf) samples into buf and returns the count written, 0 for EOF, or a
// negative value for error.
type ReadAudio func(buf []float32) int

// AbortFunc lets the host supply an additional abort predicate consulted
// alongside the session generation check (spec §4.7).
type AbortFunc func() bool

// chunkDescriptor is the per-chunk bookkeeping of spec §3.
type chunkDescriptor struct {
	overlapOffset  int   // 0 for chunk 0, else overlapSamples
	chunkSamples   int   // new content being transcribed
	actualSamples  int   // chunkSamples + overlapOffset, total passed to engine
	timeOffsetCS   int64 // centiseconds from stream start to first overlap sample
	samplesBefore  int64 // total_samples_read before this chunk
}
