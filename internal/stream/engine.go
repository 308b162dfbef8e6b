package stream

import "context"

// DecoderContext is the prior-chunk decode state threaded into the next
// chunk: the tail of the previous chunk's token history plus the language
// it detected, the same two values original_source/stream.c's pass_context
// copies out of whisper_full_get_prompt_past/whisper_full_lang_id.
type DecoderContext struct {
	Tokens  []int32
	LangTag string
}

// EngineParams is the per-chunk configuration passed to InferenceContext.Run.
// It mirrors the whisper_full_params fields original_source/stream.c sets
// per chunk (offset_ms, duration_ms, no_context, vad_params) rather than the
// engine's global configuration, which is fixed at slot-load time.
type EngineParams struct {
	NumThreads   int
	Language     string // "auto", or a resolved ISO tag; empty means unset
	Translate    bool
	OffsetMs     int // non-zero when this chunk carries leading overlap audio
	DurationMs   int
	UseVAD       bool
	VADThreshold float32
	MinSilenceMs int

	// Prior is the decode context to seed this chunk with (chunk index > 0
	// only). A nil Prior means no_context: true with nothing supplied.
	Prior *DecoderContext
}

// InferenceCallbacks are invoked by the engine while Run executes.
// Implementations must treat OnSegment/OnProgress as synchronous and must
// not call back into the stream package from within them.
type InferenceCallbacks struct {
	// OnSegment reports one newly finalized segment, with timestamps in
	// centiseconds relative to the start of the samples passed to Run (not
	// yet adjusted for the chunk's stream-level time offset; worker.go does
	// that adjustment and the cross-chunk clipping of spec §4.5).
	OnSegment func(t0CS, t1CS int64, text string)

	// OnProgress reports 0-100 progress within this Run call.
	OnProgress func(percent int)

	// Abort is polled periodically by the engine; returning true aborts the
	// in-progress Run at the next safe point.
	Abort func() bool
}

// InferenceContext is one loaded model (plus, optionally, its own VAD
// context) bound to one worker slot. It is the seam spec §1 calls out
// explicitly ("the inference engine is an external, pluggable
// collaborator"): the production adapter wraps the whisper.cpp bindings,
// and tests use a deterministic stub.
//
// Grounded on original_source/stream.c's thread_ctx + whisper_full/
// whisper_full_get_prompt_past/whisper_full_lang_id, generalized to an
// interface because the real whisper.cpp Go binding does not expose a
// mid-decode context_callback hook; Run instead accepts the prior context
// up front (see worker.go's hand-off, which fetches it before calling Run
// rather than mid-decode).
type InferenceContext interface {
	// Run transcribes samples under params, invoking cb for segments and
	// progress as they become available, and returns the decode context to
	// hand to the next chunk.
	Run(ctx context.Context, samples []float32, params EngineParams, cb InferenceCallbacks) (DecoderContext, error)

	// Close releases any resources held by the context. Safe to call once
	// a worker using it has exited.
	Close() error
}

// EngineLoader constructs an InferenceContext for one slot, given a model
// path and thread count (component C5/C8's slot loading, spec §4.1).
// gpuRequested indicates the host asked for GPU offload; the returned
// gpuDescription/gpuActive reflect what the engine actually did, before the
// GPU block-list policy (controller.go) is applied.
type EngineLoader interface {
	Load(modelPath string, numThreads int, gpuRequested bool) (ctx InferenceContext, gpuDescription string, gpuActive bool, err error)
}
