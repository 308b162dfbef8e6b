package stream

import "math"

// SpeechInterval is a VAD-detected speech region in centiseconds, relative
// to the start of the slice passed to DetectSpeech.
type SpeechInterval struct {
	StartCS int64
	EndCS   int64
}

// VADParams configures one VAD run (spec §4.3).
type VADParams struct {
	Threshold       float32
	MinSilenceMs    int
	MaxSpeechDurationS float64
}

// VADSegmenter is the external voice-activity-detection collaborator
// (spec §1, out of scope: "the VAD probability model"). Implementations run
// the model over a window of samples and return speech intervals, or nil
// when no speech was detected.
type VADSegmenter interface {
	DetectSpeech(samples []float32, params VADParams) ([]SpeechInterval, error)
}

// energyVAD is a lightweight VADSegmenter that needs no probability model.
// Nothing in this package selects it automatically: a caller passes it to
// Controller.Start, and a nil VADSegmenter there disables VAD. It buckets
// samples into 10ms frames and classifies speech via RMS energy,
// the same measure the teacher's own vad.go uses, but reports the result as
// the speech-interval shape spec §4.3 requires instead of a running
// silence/speech duration counter.
type energyVAD struct{}

// newEnergyVAD builds a VADSegmenter whose threshold is expressed as a
// [0,1] probability-like value, scaled onto the RMS energy range so it
// composes with the same Config.VADThreshold field that is passed to the
// engine as EngineParams.VADThreshold.
func newEnergyVAD() *energyVAD {
	return &energyVAD{}
}

const energyFrameSamples = SampleRate / 100 // 10ms

func (v *energyVAD) DetectSpeech(samples []float32, params VADParams) ([]SpeechInterval, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	// Map the [0,1] probability threshold onto an RMS energy threshold by
	// scaling it by 0.1: the file-mode threshold 0.25 becomes 0.025
	// full-scale RMS and the live-mode 0.5 becomes 0.05, on normalized
	// float audio.
	energyThreshold := float64(params.Threshold) * 0.1

	var intervals []SpeechInterval
	var open bool
	var openStart int

	flush := func(endFrame int) {
		if open {
			startCS := int64(openStart*energyFrameSamples) * 100 / SampleRate
			endCS := int64(endFrame*energyFrameSamples) * 100 / SampleRate
			intervals = append(intervals, SpeechInterval{StartCS: startCS, EndCS: endCS})
			open = false
		}
	}

	nFrames := len(samples) / energyFrameSamples
	for f := 0; f < nFrames; f++ {
		frame := samples[f*energyFrameSamples : (f+1)*energyFrameSamples]
		if rms(frame) > energyThreshold {
			if !open {
				open = true
				openStart = f
			}
		} else {
			flush(f)
		}
	}
	flush(nFrames)

	if len(intervals) == 0 {
		return nil, nil
	}
	return intervals, nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// runVAD implements spec §4.3: the window starts up to 5s before the
// chunk's minimum cut point (so model state is established before the
// search region), and max_speech_duration_s is derived from the window
// length.
func runVAD(seg VADSegmenter, buf *ringBuffer, overlapOffset, minChunkSamples, maxChunkSamples int, params VADParams) (intervals []SpeechInterval, vadOffset int) {
	if seg == nil {
		return nil, 0
	}
	const margin = 5 * SampleRate
	vadStart := minChunkSamples - margin
	if vadStart < 0 {
		vadStart = 0
	}
	available := buf.len() - overlapOffset
	if vadStart >= available {
		return nil, vadStart
	}
	vadLen := available - vadStart
	if maxLen := maxChunkSamples - vadStart; maxLen < vadLen {
		vadLen = maxLen
	}
	if vadLen <= 0 {
		return nil, vadStart
	}
	window := buf.samples[overlapOffset+vadStart : overlapOffset+vadStart+vadLen]
	params.MaxSpeechDurationS = float64(vadLen) / SampleRate
	out, err := seg.DetectSpeech(window, params)
	if err != nil {
		return nil, vadStart
	}
	return out, vadStart
}
