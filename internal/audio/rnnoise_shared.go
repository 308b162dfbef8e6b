package audio

// Shared by both the real and pass-through RNNoiseProcessor (rnnoise_real.go
// / rnnoise.go) so the two build-tag variants don't redeclare them.
const (
	RNNoiseSampleRate  = 48000 // RNNoise operates at 48kHz
	PipelineSampleRate = 16000 // the rest of this package operates at 16kHz
	RNNoiseFrameSize   = 480   // 10ms at 48kHz
)
