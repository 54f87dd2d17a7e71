package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned by the strict pipelines for frames that
	// violate the documented length/alignment.
	ErrMalformedFrame = errors.New("malformed audio frame")
	// ErrOddPCMLength reports a PCM16 buffer with an odd number of bytes.
	ErrOddPCMLength = fmt.Errorf("%w: odd PCM16 byte count", ErrMalformedFrame)
)

// PCM16LEToSamples unpacks signed 16-bit little-endian PCM.
// A trailing odd byte is ignored.
func PCM16LEToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// SamplesToPCM16LE packs samples as signed 16-bit little-endian PCM.
func SamplesToPCM16LE(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// TelephonyToAI converts a base64 μ-law/8kHz frame into a base64
// PCM16LE/16kHz frame.
func TelephonyToAI(payload string) (string, error) {
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode telephony payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(telephonyToAI(mulaw)), nil
}

// AIToTelephony converts a base64 PCM16LE/16kHz frame into a base64
// μ-law/8kHz frame. A trailing odd byte is ignored; see AIToTelephonyStrict.
func AIToTelephony(payload string) (string, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode ai payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(aiToTelephony(pcm)), nil
}

// TelephonyToAIStrict is TelephonyToAI for callers that want empty frames
// reported. Every byte count is a whole number of μ-law samples, so this
// only differs on empty input.
func TelephonyToAIStrict(payload string) (string, error) {
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode telephony payload: %w", err)
	}
	if len(mulaw) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	return base64.StdEncoding.EncodeToString(telephonyToAI(mulaw)), nil
}

// AIToTelephonyStrict is AIToTelephony but rejects odd-length and empty
// PCM buffers with ErrMalformedFrame instead of truncating.
func AIToTelephonyStrict(payload string) (string, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode ai payload: %w", err)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if len(pcm)%2 != 0 {
		return "", ErrOddPCMLength
	}
	return base64.StdEncoding.EncodeToString(aiToTelephony(pcm)), nil
}

func telephonyToAI(mulaw []byte) []byte {
	return SamplesToPCM16LE(Upsample8to16(MuLawToSamples(mulaw)))
}

func aiToTelephony(pcm []byte) []byte {
	return SamplesToMuLaw(Downsample16to8(PCM16LEToSamples(pcm)))
}
