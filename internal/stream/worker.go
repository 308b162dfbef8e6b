package stream

import (
	"context"
	"time"

	"github.com/tguillem/whisperstream/internal/metrics"
)

// worker owns one inference slot and processes every chunk whose index
// shares its parity (0 or 1). Two workers of opposite parity run the
// ping-pong protocol of spec §4.6: each hands its decode context to the
// other as soon as its own chunk finishes, so the next chunk can begin
// decoding with the right context the moment it's its turn.
//
// Grounded on original_source/stream.c's thread_ctx + worker_thread_func.
type worker struct {
	parity     int
	numThreads int

	chunker *chunker
	sess    *session
	engine  InferenceContext
	events  Events

	maxCtxTokens int
	langOverride func() (langTag string, ok bool)
	progressOn   func() bool
	metrics      *metrics.StreamMetrics

	other *worker // nil in single-worker mode

	// inbox, protected by sess.mu (accessed without the lock in single-thread mode)
	contextReady bool
	inboxTokens  []int32
	inboxLangTag string

	// per-chunk segment-clipping state (spec §4.5)
	timeOffsetCS  int64
	outputStartCS int64
	lastT1CS      int64
	chunkSamples  int
}

func newWorker(parity, numThreads int, ch *chunker, sess *session, engine InferenceContext, events Events, maxCtxTokens int, langOverride func() (string, bool), progressOn func() bool, m *metrics.StreamMetrics) *worker {
	return &worker{
		parity:       parity,
		numThreads:   numThreads,
		chunker:      ch,
		sess:         sess,
		engine:       engine,
		events:       events,
		maxCtxTokens: maxCtxTokens,
		langOverride: langOverride,
		progressOn:   progressOn,
		metrics:      m,
	}
}

// run processes chunks of this worker's parity until the stream ends, the
// engine errors, or the session aborts. It returns the engine error, if
// any, that caused termination.
//
// Grounded on original_source/stream.c's worker_thread_func's
// `while (process_one_chunk(tctx) == 0);` loop.
func (w *worker) run(ctx context.Context) error {
	for {
		if w.sess.aborted() {
			return nil
		}
		done, err := w.processOneChunk(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// processOneChunk claims the next chunk of this worker's parity, prepares
// its decode context, runs the engine, and hands the resulting context to
// whichever worker owns the next chunk. done is true once there is no more
// work for this worker.
func (w *worker) processOneChunk(ctx context.Context) (done bool, err error) {
	pc, ok := w.chunker.nextChunk(w.parity)
	if !ok {
		return true, nil
	}

	dst := w.other
	if dst == nil {
		dst = w
	}

	language := w.chunker.cfg.Language

	var prior *DecoderContext
	if pc.chunkIdx > 0 {
		tokens, langTag, ok := w.sess.awaitContext(w, w.maxCtxTokens, w.langOverride)
		if !ok {
			return true, nil
		}
		prior = &DecoderContext{Tokens: tokens, LangTag: langTag}
		if langTag != "" {
			language = langTag
		}
	} else if override, ok := w.langOverride(); ok {
		language = override
	}

	if w.parity == 0 && language != "" && language != "auto" {
		tag := language
		w.sess.slot0LangTag.Store(&tag)
	}

	w.timeOffsetCS = pc.desc.timeOffsetCS
	w.outputStartCS = pc.desc.timeOffsetCS + int64(pc.desc.overlapOffset)*100/SampleRate
	w.lastT1CS = 0
	w.chunkSamples = pc.desc.chunkSamples

	params := EngineParams{
		NumThreads:   w.numThreads,
		Language:     language,
		Translate:    w.chunker.cfg.Translate,
		UseVAD:       true,
		VADThreshold: w.chunker.cfg.VADThreshold,
		MinSilenceMs: w.chunker.cfg.MinSilenceMs,
		DurationMs:   pc.desc.actualSamples * 1000 / SampleRate,
		Prior:        prior,
	}
	if pc.desc.overlapOffset > 0 {
		params.OffsetMs = pc.desc.overlapOffset * 1000 / SampleRate
	}

	cb := InferenceCallbacks{
		OnSegment:  w.emitSegment,
		OnProgress: w.reportProgress(pc),
		Abort:      w.sess.aborted,
	}

	w.metrics.SetWorkerBusy(w.parity, true)
	start := time.Now()
	decoded, runErr := w.engine.Run(ctx, pc.samples, params, cb)
	elapsed := time.Since(start).Seconds()
	w.metrics.SetWorkerBusy(w.parity, false)

	if runErr != nil || w.sess.aborted() {
		w.metrics.RecordChunkProcessed(w.parity, "error", elapsed)
		w.sess.setEOF(true)
		if runErr != nil {
			return true, &EngineError{Err: runErr}
		}
		return true, nil
	}
	w.metrics.RecordChunkProcessed(w.parity, "ok", elapsed)

	if w.parity == 0 && decoded.LangTag != "" {
		tag := decoded.LangTag
		w.sess.slot0LangTag.Store(&tag)
	}

	w.sess.passContext(dst, decoded.Tokens, decoded.LangTag)

	if pc.eof {
		return true, nil
	}
	return false, nil
}

// emitSegment adjusts a raw engine segment's timestamps to stream time and
// clips it so adjacent chunks never emit overlapping or duplicate text.
//
// Grounded on original_source/stream.c's stream_segment_callback.
func (w *worker) emitSegment(t0CS, t1CS int64, text string) {
	t0 := t0CS + w.timeOffsetCS
	t1 := t1CS + w.timeOffsetCS

	if t0 < w.outputStartCS {
		t0 = w.outputStartCS
	}
	chunkEndCS := w.timeOffsetCS + int64(w.chunkSamples)*100/SampleRate
	if t1 > chunkEndCS {
		t1 = chunkEndCS
	}
	if t0 < w.lastT1CS {
		t0 = w.lastT1CS
	}
	if t0 >= t1 {
		return
	}

	var langTag string
	if p := w.sess.slot0LangTag.Load(); p != nil {
		langTag = *p
	}
	w.events.newSegment(Segment{
		Text:        text,
		T0Ms:        t0 * 10,
		T1Ms:        t1 * 10,
		LanguageTag: langTag,
	})
	w.metrics.RecordSegmentEmitted()
	w.lastT1CS = t1
}

// reportProgress returns a progress callback that only forwards while this
// worker is the session's current progress reporter, so a worker still
// finishing an earlier chunk doesn't overwrite progress from the worker
// already ahead of it.
//
// Grounded on original_source/stream.c's stream_progress_callback.
func (w *worker) reportProgress(pc preparedChunk) func(int) {
	return func(percent int) {
		if w.progressOn != nil && !w.progressOn() {
			return
		}
		if w.sess.progressReporter.Load() != w {
			return
		}
		w.events.progress(percent)
	}
}
