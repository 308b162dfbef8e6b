package audio

// Upsample16to48 and Downsample48to16 bridge the pipeline's native 16kHz PCM
// to the 48kHz RNNoise expects, and back. They exist solely to feed
// RNNoiseProcessor.ProcessChunk (rnnoise_real.go, built under the `rnnoise`
// tag); nothing else in this package runs at 48kHz. 48000/16000 is an exact
// 3, so a simple interpolate-up / average-down decimation is all either
// direction needs.

// Upsample16to48 converts 16kHz audio to 48kHz using linear interpolation.
// Input: 16-bit PCM samples at 16kHz. Output: 16-bit PCM at 48kHz (3x length).
func Upsample16to48(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}

	output := make([]int16, len(input)*3)

	for i := 0; i < len(input); i++ {
		baseIdx := i * 3

		if i < len(input)-1 {
			curr := input[i]
			next := input[i+1]
			diff := next - curr

			output[baseIdx] = curr
			output[baseIdx+1] = curr + diff/3
			output[baseIdx+2] = curr + 2*diff/3
		} else {
			output[baseIdx] = input[i]
			output[baseIdx+1] = input[i]
			output[baseIdx+2] = input[i]
		}
	}

	return output
}

// Downsample48to16 converts 48kHz audio to 16kHz by averaging each group of
// 3 samples (cheap anti-aliasing ahead of the decimation).
// Input: 16-bit PCM at 48kHz. Output: 16-bit PCM at 16kHz (1/3 length).
func Downsample48to16(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}

	outputLen := len(input) / 3
	output := make([]int16, outputLen)

	for i := 0; i < outputLen; i++ {
		idx := i * 3

		if idx+2 < len(input) {
			sum := int32(input[idx]) + int32(input[idx+1]) + int32(input[idx+2])
			output[i] = int16(sum / 3)
		} else {
			output[i] = input[idx]
		}
	}

	return output
}
