package stream

// ringBuffer is the mutable pending-sample sequence of spec §3/§4.2. It
// holds audio between the producer callback and the chunker, never more
// than capacity = maxChunkSamples + overlapSamples. After each chunk
// hand-off it retains the last overlapSamples of the handed-off chunk plus
// every sample read past the chunk's end.
//
// Grounded on original_source/stream.c's fill_read_buffer/handoff_to_next
// (a single flat float buffer with memmove-style compaction), translated to
// a Go slice with len() as the buffer length and cap() as capacity.
type ringBuffer struct {
	samples  []float32
	capacity int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		samples:  make([]float32, 0, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) len() int { return len(r.samples) }

// fill pulls from read until the buffer holds at least targetLen samples or
// EOF is observed (spec §4.2). Returns the resulting buffer length and
// whether EOF was hit.
func (r *ringBuffer) fill(targetLen int, read ReadAudio) (int, bool) {
	eof := false
	for len(r.samples) < targetLen && !eof {
		free := r.capacity - len(r.samples)
		if free <= 0 {
			break
		}
		scratch := make([]float32, free)
		n := read(scratch)
		if n <= 0 {
			// Spec §6 distinguishes 0 (EOF) from negative (read error,
			// surfaced as a HostError per §7) but original_source/stream.c's
			// fill_read_buffer treats both as "stop reading" identically;
			// kept that way here, so a read error still drains as a clean
			// stream_complete(true) rather than an aborted run.
			eof = true
			break
		}
		r.samples = append(r.samples, scratch[:n]...)
	}
	return len(r.samples), eof
}

// advance drops the samples consumed by the chunk just handed off, keeping
// the chunk's last overlapSamples samples and everything after them (spec
// §4.2). Returns true if, with eof already observed, the remainder is no
// more than overlapSamples, so no new chunk can start.
func (r *ringBuffer) advance(actualSamples, overlapSamples int, eof bool) bool {
	keepStart := actualSamples - overlapSamples
	if keepStart < 0 {
		keepStart = 0
	}
	keepLen := len(r.samples) - keepStart
	if keepLen > 0 {
		copy(r.samples, r.samples[keepStart:])
		r.samples = r.samples[:keepLen]
	} else {
		r.samples = r.samples[:0]
		keepLen = 0
	}
	return eof && keepLen <= overlapSamples
}

// copyOut copies the first n samples into dst, growing dst as needed.
func (r *ringBuffer) copyOut(dst []float32, n int) []float32 {
	if cap(dst) < n {
		dst = make([]float32, n)
	} else {
		dst = dst[:n]
	}
	copy(dst, r.samples[:n])
	return dst
}
