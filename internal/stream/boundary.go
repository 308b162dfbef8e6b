package stream

// checkGap returns the sample offset (relative to the buffer start) at
// which to cut for a silence gap [gapStartCS, gapEndCS), clamped into
// [rangeStartCS, rangeEndCS], or -1 if the gap is too short or outside the
// search range.
//
// Grounded on original_source/stream.c's check_gap.
func checkGap(gapStartCS, gapEndCS, rangeStartCS, rangeEndCS int64, minSilenceMs int) int {
	gapMs := (gapEndCS - gapStartCS) * 10
	if gapMs < int64(minSilenceMs) {
		return -1
	}
	if gapStartCS >= rangeEndCS || gapEndCS <= rangeStartCS {
		return -1
	}

	gapMiddleCS := (gapStartCS + gapEndCS) / 2
	if gapMiddleCS < rangeStartCS {
		gapMiddleCS = rangeStartCS
	}
	if gapMiddleCS > rangeEndCS {
		gapMiddleCS = rangeEndCS
	}
	return int(gapMiddleCS * SampleRate / 100)
}

// findSilenceInSegments scans the gaps between consecutive speech intervals
// (and the gap after the last one, out to rangeEndSamples) for one wide
// enough to cut in, inside [rangeStartSamples, rangeEndSamples). vadOffset
// is the sample offset of the VAD window within the buffer the intervals are
// relative to.
//
// Grounded on original_source/stream.c's find_silence_in_segments.
func findSilenceInSegments(intervals []SpeechInterval, rangeStartSamples, rangeEndSamples int, minSilenceMs, vadOffset int) int {
	if len(intervals) == 0 {
		return -1
	}

	vadOffsetCS := int64(vadOffset) * 100 / SampleRate
	rangeStartCS := int64(rangeStartSamples) * 100 / SampleRate
	rangeEndCS := int64(rangeEndSamples) * 100 / SampleRate

	for i := 0; i < len(intervals)-1; i++ {
		gapStart := intervals[i].EndCS + vadOffsetCS
		gapEnd := intervals[i+1].StartCS + vadOffsetCS

		if gapEnd <= rangeStartCS {
			continue
		}
		if gapStart >= rangeEndCS {
			break
		}

		if pos := checkGap(gapStart, gapEnd, rangeStartCS, rangeEndCS, minSilenceMs); pos >= 0 {
			return pos
		}
	}

	lastEnd := intervals[len(intervals)-1].EndCS + vadOffsetCS
	return checkGap(lastEnd, rangeEndCS, rangeStartCS, rangeEndCS, minSilenceMs)
}

// findChunkBoundary picks the sample offset at which the current chunk
// ends: the available length if it doesn't exceed minChunkSamples, the
// minimum chunk length if there is no VAD result, the first wide-enough
// silence gap found inside [minChunkSamples, min(maxChunkSamples, available))
// if there is one, or that search window's far edge (a forced split)
// otherwise.
//
// Grounded on original_source/stream.c's find_chunk_boundary.
func findChunkBoundary(minChunkSamples, maxChunkSamples, available int, intervals []SpeechInterval, vadOffset int, minSilenceMs int) (boundary int, silenceFoundMs int) {
	searchStart := minChunkSamples
	searchEnd := maxChunkSamples
	if available < searchEnd {
		searchEnd = available
	}

	if searchStart >= searchEnd {
		return searchEnd, 0
	}

	if intervals == nil {
		return searchStart, 0
	}

	if pos := findSilenceInSegments(intervals, searchStart, searchEnd, minSilenceMs, vadOffset); pos > 0 {
		return pos, minSilenceMs
	}

	return searchEnd, 0
}
