package orchestration

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

func sineWavePayload(sampleRate int, duration time.Duration, amplitude float64) []byte {
	samples := int(float64(sampleRate) * duration.Seconds())
	payload := make([]byte, samples*2)
	for i := range samples {
		value := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(value*math.MaxInt16)))
	}
	return payload
}

func TestAnalyzeAmplitude(t *testing.T) {
	encoding := audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}
	payload := sineWavePayload(16000, 500*time.Millisecond, 0.5)

	samples := analyzeAmplitude(payload, encoding)
	if len(samples) != 10 {
		t.Fatalf("Expected 10 windows for 500ms of audio, got %d", len(samples))
	}

	// RMS of a 0.5 amplitude sine is 0.5/sqrt(2).
	expected := 0.5 / math.Sqrt2
	for _, sample := range samples {
		if math.Abs(sample.Level-expected) > 0.02 {
			t.Errorf("Expected level near %.3f at %v, got %.3f", expected, sample.Offset, sample.Level)
		}
	}
}

func TestAnalyzeAmplitudeSilence(t *testing.T) {
	encoding := audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}
	payload := make([]byte, 16000)

	for _, sample := range analyzeAmplitude(payload, encoding) {
		if sample.Level != 0 {
			t.Errorf("Expected zero level for silence at %v, got %.3f", sample.Offset, sample.Level)
		}
	}
}

func TestAnalyzeAmplitudeMulaw(t *testing.T) {
	encoding := audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}
	// Mu-law silence bytes decode to near-zero PCM.
	payload := make([]byte, 800)
	for i := range payload {
		payload[i] = encoding.SilenceValue()
	}

	samples := analyzeAmplitude(payload, encoding)
	if len(samples) == 0 {
		t.Fatal("Expected amplitude samples for mulaw payload")
	}
	for _, sample := range samples {
		if sample.Level > 0.01 {
			t.Errorf("Expected near-zero level for mulaw silence, got %.3f", sample.Level)
		}
	}
}
