package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperContext is the production InferenceContext adapter over
// whisper.cpp's Go bindings.
//
// The bindings' Context.Process doesn't expose the lower-level C API
// original_source/stream.c drives directly (context_callback, offset_ms,
// abort_callback, per-call no_context/duration_ms): it runs the full
// sample slice in one call with only segment/progress callbacks. Run
// adapts around that gap rather than fabricating calls the binding doesn't
// have:
//   - Prior decode context is threaded as SetInitialPrompt text (the
//     closest lever this binding exposes) instead of raw token IDs.
//   - Abort is only checked before Run starts decoding, not mid-decode:
//     the binding has no abort hook to poll from inside Process.
//   - offset_ms is not applied; the full actualSamples buffer (including
//     the overlap lead-in) is decoded, and worker.go's segment clipping
//     against output_start already suppresses the overlap region from
//     emitted output, so this only costs a little redundant compute.
//
// Grounded on server/internal/transcription/whisper.go's WhisperTranscriber.
type whisperContext struct {
	mu  sync.Mutex
	ctx whisper.Context

	// lastText accumulates this Run's segments, to seed the next chunk's
	// initial prompt in place of true token-level context.
	lastText strings.Builder
}

func newWhisperContext(ctx whisper.Context, language string, threads uint) *whisperContext {
	if language != "" {
		ctx.SetLanguage(language)
	} else {
		ctx.SetLanguage("auto")
	}
	if threads > 0 {
		ctx.SetThreads(threads)
	}
	ctx.SetTranslate(false)
	ctx.SetTokenTimestamps(true)
	ctx.SetMaxTextContext(16384)
	return &whisperContext{ctx: ctx}
}

func (w *whisperContext) Run(_ context.Context, samples []float32, params EngineParams, cb InferenceCallbacks) (DecoderContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(samples) == 0 {
		return DecoderContext{}, fmt.Errorf("empty audio samples")
	}
	if cb.Abort != nil && cb.Abort() {
		return DecoderContext{}, nil
	}

	if params.NumThreads > 0 {
		w.ctx.SetThreads(uint(params.NumThreads))
	}
	w.ctx.SetTranslate(params.Translate)
	if params.Language != "" {
		w.ctx.SetLanguage(params.Language)
	}
	if params.Prior != nil && len(params.Prior.Tokens) == 0 && w.lastText.Len() > 0 {
		w.ctx.SetInitialPrompt(w.lastText.String())
	}

	w.lastText.Reset()

	err := w.ctx.Process(samples, nil, func(seg whisper.Segment) {
		if cb.OnSegment != nil {
			cs := 10 * time.Millisecond
			cb.OnSegment(int64(seg.Start/cs), int64(seg.End/cs), seg.Text)
		}
		w.lastText.WriteString(seg.Text)
	}, func(progress int) {
		if cb.OnProgress != nil {
			cb.OnProgress(progress)
		}
	})
	if err != nil {
		return DecoderContext{}, fmt.Errorf("whisper process: %w", err)
	}

	// The binding doesn't expose the language whisper_full actually detected
	// (whisper_full_lang_id has no Go-side accessor); a fixed non-"auto"
	// language carries forward as-is, auto-detect carries forward empty so
	// the next chunk re-detects rather than assuming a language.
	lang := params.Language
	if lang == "auto" {
		lang = ""
	}
	return DecoderContext{LangTag: lang}, nil
}

func (w *whisperContext) Close() error {
	return nil
}
