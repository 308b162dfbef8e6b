package stream

import (
	"sync"
	"sync/atomic"
)

// session is the state shared between the two workers of a ping-pong pair:
// whose turn it is to claim the next chunk, how much audio has been
// consumed, whether the stream has reached EOF, and the single abort flag
// that both workers and the host observe.
//
// Grounded on original_source/stream.c's common_ctx plus its pthread
// mutex/cond turn-taking (wait_for_turn, handoff_to_next, set_eof),
// translated to sync.Mutex/sync.Cond. singleThread mirrors the C code's
// bypass of the lock entirely when only one slot is loaded.
type session struct {
	mu   sync.Mutex
	cond *sync.Cond

	nextChunkIdx     int
	totalSamplesRead int64
	eof              bool

	abort        atomic.Bool
	singleThread bool

	// progressReporter names which worker's progress callback is currently
	// authoritative, so that a worker still finishing an earlier, slower
	// chunk doesn't clobber progress reported by the worker now ahead of it.
	progressReporter atomic.Pointer[worker]

	// slot0LangTag is the language tag slot 0 (the primary worker) last
	// detected or was overridden to, attached to every emitted segment
	// regardless of which worker produced it (spec's new_segment
	// language_tag_of_slot0).
	slot0LangTag atomic.Pointer[string]

	hostAbort AbortFunc
}

func newSession(singleThread bool, hostAbort AbortFunc) *session {
	s := &session{singleThread: singleThread, hostAbort: hostAbort}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// waitForTurn blocks (in dual-worker mode) until it is the given parity's
// turn to claim the next chunk, or the stream has ended. ok is false once
// there is no more work for this worker.
func (s *session) waitForTurn(parity int) (chunkIdx int, totalSamples int64, ok bool) {
	if s.singleThread {
		if s.eof {
			return 0, 0, false
		}
		return s.nextChunkIdx, s.totalSamplesRead, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.nextChunkIdx%2 != parity && !s.eof {
		s.cond.Wait()
	}
	if s.eof {
		return 0, 0, false
	}
	return s.nextChunkIdx, s.totalSamplesRead, true
}

// handoff publishes the result of one chunk's buffer preparation: the next
// chunk index, the new total-samples-read watermark, and whether that
// chunk exhausted the stream. It wakes any worker blocked in waitForTurn.
func (s *session) handoff(chunkIdx int, totalSamples int64, chunkSamples int, eof bool) {
	if s.singleThread {
		s.totalSamplesRead = totalSamples + int64(chunkSamples)
		s.nextChunkIdx = chunkIdx + 1
		if eof {
			s.eof = true
		}
		return
	}

	s.mu.Lock()
	s.totalSamplesRead = totalSamples + int64(chunkSamples)
	s.nextChunkIdx = chunkIdx + 1
	if eof {
		s.eof = true
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// setEOF marks the stream finished. andAbort additionally raises abort; a
// worker passes true when its engine run failed or was aborted, while the
// chunker passes false when EOF leaves nothing to hand off.
func (s *session) setEOF(andAbort bool) {
	s.mu.Lock()
	s.eof = true
	if andAbort {
		s.abort.Store(true)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// aborted reports whether either the session's own abort flag or the host's
// abort predicate requests termination (spec §4.7).
func (s *session) aborted() bool {
	if s.abort.Load() {
		return true
	}
	if s.hostAbort != nil && s.hostAbort() {
		return true
	}
	return false
}

// passContext hands decode context off to dst (the worker that will handle
// the next chunk of dst's parity; the same worker again in single-thread
// mode), and marks dst as the authoritative progress reporter — the worker
// now furthest along in the stream, per stream_progress_callback's guard in
// original_source/stream.c.
//
// Grounded on original_source/stream.c's pass_context.
func (s *session) passContext(dst *worker, tokens []int32, langTag string) {
	s.progressReporter.Store(dst)

	if s.singleThread {
		dst.inboxTokens = tokens
		dst.inboxLangTag = langTag
		dst.contextReady = true
		return
	}

	s.mu.Lock()
	dst.inboxTokens = tokens
	dst.inboxLangTag = langTag
	dst.contextReady = true
	s.cond.Signal()
	s.mu.Unlock()
}

// awaitContext blocks until w's inbox holds the context handed off by the
// worker that processed the previous chunk, applies any host language
// override (control.update_language), and returns the tokens/language to
// seed this chunk's decode with. ok is false if the session aborted first.
//
// Grounded on original_source/stream.c's stream_context_callback + copy_tokens.
func (s *session) awaitContext(w *worker, maxTokens int, langOverride func() (string, bool)) (tokens []int32, langTag string, ok bool) {
	if s.singleThread {
		tok, lang := copyTokens(w, maxTokens, langOverride)
		return tok, lang, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for !w.contextReady && !s.abort.Load() {
		s.cond.Wait()
	}
	w.contextReady = false
	if s.abort.Load() {
		return nil, "", false
	}
	tok, lang := copyTokens(w, maxTokens, langOverride)
	return tok, lang, true
}

// copyTokens applies the max-token clamp and language-override rule: an
// overridden language with no matching prior context carries zero tokens,
// since the decode context no longer corresponds to the language in use.
func copyTokens(w *worker, maxTokens int, langOverride func() (string, bool)) ([]int32, string) {
	n := len(w.inboxTokens)
	if n > maxTokens {
		n = maxTokens
	}
	langTag := w.inboxLangTag
	if langOverride != nil {
		if override, ok := langOverride(); ok && override != langTag {
			langTag = override
			n = 0
		}
	}
	if n == 0 {
		return nil, langTag
	}
	out := make([]int32, n)
	copy(out, w.inboxTokens[:n])
	return out, langTag
}
