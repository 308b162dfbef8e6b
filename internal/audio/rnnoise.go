//go:build !rnnoise
// +build !rnnoise

package audio

import (
	"github.com/tguillem/whisperstream/internal/logger"
)

// Built without the rnnoise cgo tag: a no-op stand-in with the same shape
// as rnnoise_real.go's processor, so webrtc.Session never needs to branch
// on which build it's running under.
type RNNoiseProcessor struct {
	log *logger.ContextLogger
}

func NewRNNoiseProcessor(modelPath string, log *logger.Logger) (*RNNoiseProcessor, error) {
	contextLog := log.With("rnnoise")
	contextLog.Warn("disabled - passing audio through unmodified (build with -tags rnnoise for noise suppression)")
	return &RNNoiseProcessor{log: contextLog}, nil
}

func (r *RNNoiseProcessor) ProcessChunk(samples []int16) ([]int16, error) {
	return samples, nil
}

func (r *RNNoiseProcessor) ProcessBytes(pcmData []byte) ([]byte, error) {
	return pcmData, nil
}

func (r *RNNoiseProcessor) Flush() []int16 { return nil }

func (r *RNNoiseProcessor) Reset() {}

func (r *RNNoiseProcessor) Close() error { return nil }
