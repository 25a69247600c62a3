package orchestration

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zaf/g711"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

const amplitudeWindow = 50 * time.Millisecond

// AmplitudeSample is one visualization data point: the RMS level of a short
// playback window, normalized to [0, 1].
type AmplitudeSample struct {
	Offset time.Duration
	Level  float64
}

// analyzeAmplitude computes windowed RMS levels over a speech payload.
// Compressed telephony payloads are decoded to linear PCM first so all
// encodings measure on the same scale.
func analyzeAmplitude(payload []byte, encodingInfo audio.EncodingInfo) []AmplitudeSample {
	switch encodingInfo.Format {
	case audio.EncodingMulaw:
		payload = g711.DecodeUlaw(payload)
	case audio.EncodingALaw:
		payload = g711.DecodeAlaw(payload)
	case audio.EncodingLinear16:
	default:
		return nil
	}

	if encodingInfo.SampleRate <= 0 {
		return nil
	}

	windowSamples := int(float64(encodingInfo.SampleRate) * amplitudeWindow.Seconds())
	if windowSamples == 0 {
		return nil
	}

	samples := make([]AmplitudeSample, 0, len(payload)/(windowSamples*2)+1)
	for window := 0; window*windowSamples*2 < len(payload); window++ {
		start := window * windowSamples * 2
		end := min(start+windowSamples*2, len(payload))

		var sumSquares float64
		count := 0
		for i := start; i+1 < end; i += 2 {
			sample := int16(binary.LittleEndian.Uint16(payload[i : i+2]))
			normalized := float64(sample) / math.MaxInt16
			sumSquares += normalized * normalized
			count++
		}
		if count == 0 {
			break
		}

		samples = append(samples, AmplitudeSample{
			Offset: time.Duration(window) * amplitudeWindow,
			Level:  math.Sqrt(sumSquares / float64(count)),
		})
	}

	return samples
}
