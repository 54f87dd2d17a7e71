package audio

// Sample rates on both sides of the telephony bridge.
const (
	TelephonySampleRate = 8000  // μ-law, mono
	AISampleRate        = 16000 // PCM16 little-endian, mono
)

// Upsample8to16 doubles the sample rate by inserting the rounded midpoint
// between each pair of adjacent samples. The final sample has no right
// neighbour and is duplicated.
func Upsample8to16(samples []int16) []int16 {
	if len(samples) == 0 {
		return []int16{}
	}

	out := make([]int16, len(samples)*2)
	last := len(samples) - 1
	for i, s := range samples {
		out[i*2] = s
		if i == last {
			out[i*2+1] = s
			continue
		}
		out[i*2+1] = midpoint(s, samples[i+1])
	}
	return out
}

// Downsample16to8 halves the sample rate by averaging each adjacent pair
// (box-filter decimation). A trailing unpaired sample is dropped.
func Downsample16to8(samples []int16) []int16 {
	n := len(samples) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = midpoint(samples[i*2], samples[i*2+1])
	}
	return out
}

// midpoint returns (a+b)/2 rounded half up. The result always lies between
// a and b, so it cannot overflow int16.
func midpoint(a, b int16) int16 {
	return int16((int32(a) + int32(b) + 1) >> 1)
}
