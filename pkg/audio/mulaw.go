// Package audio provides audio processing utilities.
//
// mulaw.go implements μ-law (G.711) audio codec conversions.
// μ-law is the standard audio encoding for telephone systems in North America and Japan.
//
// Features:
//   - μ-law to Linear PCM (16-bit signed) conversion
//   - Linear PCM to μ-law conversion
//   - Whole-frame helpers over sample slices
//
// Reference: ITU-T G.711 specification

package audio

import "math/bits"

// MuLaw codec constants
const (
	MuLawBias      = 0x84  // Bias for linear code (16-bit scale)
	MuLawClip      = 32635 // Maximum magnitude before biasing
	MuLawSignBit   = 0x80
	MuLawSegShift  = 4
	MuLawSegMask   = 0x70
	MuLawQuantMask = 0x0f

	// muLawBias14 is the bias of the 14-bit expansion ((mantissa<<1)+33)<<exponent - 33.
	muLawBias14 = 33
)

// MuLawDecode converts a single μ-law byte to a 16-bit signed PCM sample.
//
// The byte is complemented and split into sign, 3-bit exponent and 4-bit
// mantissa. The 14-bit magnitude ((mantissa<<1)+33)<<exponent - 33 is then
// scaled to the 16-bit range.
func MuLawDecode(mulaw byte) int16 {
	u := ^mulaw
	exponent := (u & MuLawSegMask) >> MuLawSegShift
	mantissa := int32(u & MuLawQuantMask)

	magnitude := (((mantissa << 1) + muLawBias14) << exponent) - muLawBias14
	magnitude <<= 2

	if u&MuLawSignBit != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// MuLawEncode converts a 16-bit signed PCM sample to μ-law.
func MuLawEncode(pcm int16) byte {
	magnitude := int32(pcm)
	var sign byte
	if magnitude < 0 {
		magnitude = -magnitude
		sign = MuLawSignBit
	}
	if magnitude > MuLawClip {
		magnitude = MuLawClip
	}
	magnitude += MuLawBias

	// Highest set band above bit 7 gives the exponent (0-7).
	exponent := 0
	if band := uint32(magnitude) >> 7; band != 0 {
		exponent = bits.Len32(band) - 1
	}
	mantissa := byte(magnitude>>(exponent+3)) & MuLawQuantMask

	return ^(sign | byte(exponent)<<MuLawSegShift | mantissa)
}

// MuLawToSamples expands μ-law bytes into PCM16 samples.
func MuLawToSamples(mulaw []byte) []int16 {
	samples := make([]int16, len(mulaw))
	for i, b := range mulaw {
		samples[i] = MuLawDecode(b)
	}
	return samples
}

// SamplesToMuLaw compresses PCM16 samples into μ-law bytes.
func SamplesToMuLaw(samples []int16) []byte {
	mulaw := make([]byte, len(samples))
	for i, s := range samples {
		mulaw[i] = MuLawEncode(s)
	}
	return mulaw
}
