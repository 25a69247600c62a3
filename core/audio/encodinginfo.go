package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string { return string(e) }

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// Duration reports how long the given payload takes to play at the given
// encoding. This is derived from the actual payload size, never from text
// length estimates.
func Duration(payload []byte, encodingInfo EncodingInfo) time.Duration {
	if encodingInfo.IsZero() || encodingInfo.Format.ByteSize() <= 0 {
		return 0
	}

	samples := len(payload) / encodingInfo.Format.ByteSize()
	return time.Duration(float64(samples) / float64(encodingInfo.SampleRate) * float64(time.Second))
}

// Samples reports how many payload bytes correspond to the given play time at
// the given encoding.
func Samples(duration time.Duration, encodingInfo EncodingInfo) int {
	return int(float64(duration) / float64(time.Second) * float64(encodingInfo.SampleRate) * float64(encodingInfo.Format.ByteSize()))
}
