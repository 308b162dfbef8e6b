package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource adapts a 16kHz mono WAV file into a stream.ReadAudio producer:
// the whole file is decoded up front and served out in caller-sized bursts,
// returning 0 once exhausted.
//
// Grounded on AshBuk-speak-to-ai/whisper/engine.go's loadAudioData, adapted
// from "decode once, return the whole slice" to an incremental pull callback
// since the scheduler's ring buffer (internal/stream) pulls audio
// incrementally rather than taking a single preloaded buffer.
type FileSource struct {
	samples []float32
	pos     int
}

// NewFileSource decodes path as a 16-bit PCM WAV file and normalizes its
// samples to float32 in [-1.0, 1.0]. The file must already be mono 16kHz;
// callers needing other formats should resample before loading.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if decoder == nil {
		return nil, fmt.Errorf("create wav decoder for %s", path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	samples := make([]float32, buf.NumFrames())
	for i := 0; i < buf.NumFrames(); i++ {
		samples[i] = float32(buf.Data[i]) / 32768.0
	}
	return &FileSource{samples: samples}, nil
}

// Read implements stream.ReadAudio.
func (s *FileSource) Read(out []float32) int {
	if s.pos >= len(s.samples) {
		return 0
	}
	n := copy(out, s.samples[s.pos:])
	s.pos += n
	return n
}

// TotalSamples reports the full decoded length, for computing a
// set_duration value up front.
func (s *FileSource) TotalSamples() int { return len(s.samples) }

// LiveSource adapts a push-driven audio feed (e.g. WebRTC DataChannel
// chunks arriving asynchronously) into a stream.ReadAudio producer: Push
// appends newly arrived samples, Read blocks until at least one sample is
// available or Close is called.
//
// Grounded on the same producer/consumer shape as
// original_source/jni.c's audio ring buffer feeding fill_read_buffer,
// expressed with a mutex + condvar instead of a lock-free ring since the
// producer (network I/O) and consumer (the stream package's own worker
// goroutine) are already on separate goroutines here.
type LiveSource struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []float32
	closed bool
}

// NewLiveSource creates an empty LiveSource.
func NewLiveSource() *LiveSource {
	s := &LiveSource{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends newly received samples, waking any blocked Read.
func (s *LiveSource) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	s.buf = append(s.buf, samples...)
	s.cond.Signal()
	s.mu.Unlock()
}

// Close marks the feed ended and wakes any blocked Read. Read still returns
// samples pushed before Close, then returns 0 once they are drained.
func (s *LiveSource) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Read implements stream.ReadAudio.
func (s *LiveSource) Read(out []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		return 0
	}
	n := copy(out, s.buf)
	s.buf = s.buf[n:]
	return n
}

// DebugWriter accumulates every sample handed to it and writes them out as a
// 16-bit mono WAV file on Close, for inspecting exactly what audio a session
// fed the scheduler.
//
// Grounded on the teacher's saveWAV debug helper (the file-dump counterpart
// to loadAudioData above), adapted into an incremental Write/Close pair so
// it can tap a LiveSource's Push calls without buffering the whole session
// twice.
type DebugWriter struct {
	path    string
	samples []float32
}

// NewDebugWriter prepares a debug WAV dump at path.
func NewDebugWriter(path string) *DebugWriter {
	return &DebugWriter{path: path}
}

// Write appends samples to the pending dump.
func (d *DebugWriter) Write(samples []float32) {
	d.samples = append(d.samples, samples...)
}

// Close encodes the accumulated samples as 16-bit PCM mono WAV at SampleRate
// and writes the file.
func (d *DebugWriter) Close(sampleRate int) error {
	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("create debug wav %s: %w", d.path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	ints := make([]int, len(d.samples))
	for i, s := range d.samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		ints[i] = int(v)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode debug wav %s: %w", d.path, err)
	}
	return enc.Close()
}
