package speechtotext

import (
	"context"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

// Transcriber is a live transcription session. Audio goes in as it is
// captured; transcripts and speech events come back through the callbacks
// registered at Transcribe time.
type Transcriber interface {
	// Transcribe opens the transcription stream. It returns once the stream
	// is ready to accept audio.
	Transcribe(ctx context.Context, opts ...TranscriptionOption) error
	// SendAudio forwards captured audio to the transcription stream.
	SendAudio(audio []byte) error
	// StopStream asks the provider to flush any buffered audio and finish
	// the current utterance.
	StopStream() error
	// Close tears the stream down.
	Close() error
}

type TranscriptionOptions struct {
	// TranscriptionCallback is called with the full accumulated transcript
	// once the speaker finishes an utterance.
	TranscriptionCallback func(transcript string)
	// InterimTranscriptionCallback is called with in-progress transcripts
	// while the speaker is still talking.
	InterimTranscriptionCallback func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
