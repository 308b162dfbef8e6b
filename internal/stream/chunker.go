package stream

// chunker drives one chunk's worth of buffer filling, boundary selection,
// and buffer hand-off. Its ring buffer is touched only by the worker
// currently holding the turn (enforced by session.waitForTurn), so fill and
// boundary search run without holding the session lock; only the hand-off
// itself (publishing the new chunk index / sample watermark) is locked.
//
// Grounded on original_source/stream.c's process_one_chunk, fill_read_buffer
// and handoff_to_next (component C4 of the scheduler).
type chunker struct {
	cfg     Config
	buf     *ringBuffer
	read    ReadAudio
	vad     VADSegmenter
	session *session
}

func newChunker(cfg Config, read ReadAudio, vad VADSegmenter, sess *session) *chunker {
	capacity := cfg.maxChunkSamples() + cfg.overlapSamples()
	return &chunker{
		cfg:     cfg,
		buf:     newRingBuffer(capacity),
		read:    read,
		vad:     vad,
		session: sess,
	}
}

// preparedChunk is the result of nextChunk: the audio to hand the engine
// plus the bookkeeping the worker needs to report time offsets and drive the
// next hand-off.
type preparedChunk struct {
	samples        []float32
	desc           chunkDescriptor
	chunkIdx       int
	eof            bool
	silenceFoundMs int
}

// nextChunk claims the next chunk for the worker of the given parity,
// blocking until it is that worker's turn (dual mode) or the stream has
// ended. ok is false once there is no more work.
func (c *chunker) nextChunk(parity int) (preparedChunk, bool) {
	chunkIdx, totalSamples, ok := c.session.waitForTurn(parity)
	if !ok {
		return preparedChunk{}, false
	}

	minChunkSamples := c.cfg.minChunkSamples()
	maxChunkSamples := c.cfg.maxChunkSamples()
	overlapSamples := c.cfg.overlapSamples()
	targetLen := maxChunkSamples + overlapSamples

	overlapOffset := 0
	if chunkIdx > 0 {
		overlapOffset = overlapSamples
	}

	bufferLen, eof := c.buf.fill(targetLen, c.read)

	var intervals []SpeechInterval
	vadStart := 0
	if c.vad != nil {
		intervals, vadStart = runVAD(c.vad, c.buf, overlapOffset, minChunkSamples, maxChunkSamples, VADParams{
			Threshold:    c.cfg.VADThreshold,
			MinSilenceMs: c.cfg.MinSilenceMs,
		})
	}

	if bufferLen <= overlapOffset {
		c.session.setEOF(false)
		return preparedChunk{}, false
	}

	available := bufferLen - overlapOffset
	foundBoundary, silenceFoundMs := findChunkBoundary(minChunkSamples, maxChunkSamples, available, intervals, vadStart, c.cfg.MinSilenceMs)

	desc := makeChunkInfo(foundBoundary, available, overlapOffset, totalSamples, eof, minChunkSamples)

	samples := c.buf.copyOut(nil, desc.actualSamples)
	chunkEOF := c.buf.advance(desc.actualSamples, overlapSamples, eof)

	c.session.handoff(chunkIdx, totalSamples, desc.chunkSamples, chunkEOF)

	return preparedChunk{
		samples:        samples,
		desc:           desc,
		chunkIdx:       chunkIdx,
		eof:            chunkEOF,
		silenceFoundMs: silenceFoundMs,
	}, true
}

// makeChunkInfo finalizes the chunk's sample counts and time offset,
// absorbing any sub-min remainder into the final chunk at EOF.
//
// Grounded on original_source/stream.c's make_chunk_info.
func makeChunkInfo(chunkSamples, available, overlapOffset int, totalSamples int64, eof bool, minChunkSamples int) chunkDescriptor {
	if eof && available-chunkSamples < minChunkSamples {
		chunkSamples = available
	}

	return chunkDescriptor{
		overlapOffset: overlapOffset,
		chunkSamples:  chunkSamples,
		actualSamples: chunkSamples + overlapOffset,
		timeOffsetCS:  100 * (totalSamples - int64(overlapOffset)) / SampleRate,
		samplesBefore: totalSamples,
	}
}
