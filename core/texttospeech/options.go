package texttospeech

import (
	"context"
	"fmt"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

// Synthesizer turns a piece of text into a single playable speech payload.
// Both the streaming speech queue and the single-shot speech player consume
// this contract, so providers only need to implement whole-utterance
// synthesis.
type Synthesizer interface {
	// Synthesize generates speech for the given text. It blocks until the
	// full payload is available or the context is cancelled.
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) (*Speech, error)
}

// Speech is a fully synthesized utterance.
type Speech struct {
	// Audio is the raw payload in the encoding reported by EncodingInfo.
	Audio []byte
	// EncodingInfo describes the payload so players can derive its true
	// duration from the byte length.
	EncodingInfo audio.EncodingInfo
}

// Duration reports the play time of the payload, derived from its byte
// length and encoding.
func (s *Speech) Duration() time.Duration {
	return audio.Duration(s.Audio, s.EncodingInfo)
}

type SynthesisOptions struct {
	Voice string
	Model string
	// Speed is a playback-rate multiplier, 1.0 is normal speed.
	Speed float64

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithModel(model string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Model = model }
}

func WithSpeed(speed float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		if speed <= 0 {
			return
		}
		o.Speed = speed
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// SynthesisError reports a failed synthesis attempt along with the text that
// triggered it, so queue consumers can log and skip the chunk.
type SynthesisError struct {
	Text string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("failed to synthesize %q: %v", e.Text, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
