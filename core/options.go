package orchestration

import (
	"context"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/reply"
	"github.com/voiceloop-ai/voiceloop-core/core/speechtotext"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

type CoordinatorOption func(*Coordinator)

// SpeechSink is the one audio output channel. It is exclusively owned by the
// coordinator; subordinate players request access through it but never
// assume they hold it across an asynchronous boundary.
type SpeechSink interface {
	SendAudio(audio []byte) error
	ClearBuffer()
	EncodingInfo() audio.EncodingInfo
}

// MarkableSpeechSink additionally reports playback cues, letting players
// observe when queued audio has actually left the device.
type MarkableSpeechSink interface {
	SpeechSink
	Mark(name string, callback func(string)) error
}

// AudioSource is the microphone. Also exclusively owned by the coordinator.
type AudioSource interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithReplyClient(client *reply.Client) CoordinatorOption {
	return func(c *Coordinator) {
		c.dispatcher = newResponseDispatcher(client, false)
	}
}

// WithStructuredReplyClient requests schema-constrained metadata with every
// whole-JSON reply.
func WithStructuredReplyClient(client *reply.Client) CoordinatorOption {
	return func(c *Coordinator) {
		c.dispatcher = newResponseDispatcher(client, true)
	}
}

func WithSynthesizer(synthesizer texttospeech.Synthesizer) CoordinatorOption {
	return func(c *Coordinator) { c.synthesizer = synthesizer }
}

func WithSpeechSink(sink SpeechSink) CoordinatorOption {
	return func(c *Coordinator) { c.sink = sink }
}

func WithAudioSource(source AudioSource) CoordinatorOption {
	return func(c *Coordinator) { c.source = source }
}

func WithTranscriber(transcriber speechtotext.Transcriber) CoordinatorOption {
	return func(c *Coordinator) { c.transcriber = transcriber }
}

// WithStreamedReplies makes dispatches use the streaming transport, playing
// the reply sentence-by-sentence as text arrives.
func WithStreamedReplies() CoordinatorOption {
	return func(c *Coordinator) { c.streamReplies = true }
}

func WithMode(mode Mode) CoordinatorOption {
	return func(c *Coordinator) {
		if mode.valid() {
			c.mode = mode
		}
	}
}

func WithIdentity(userID, userName string) CoordinatorOption {
	return func(c *Coordinator) {
		c.userID = userID
		c.userName = userName
	}
}

func WithSession(sessionID, memoryMode string) CoordinatorOption {
	return func(c *Coordinator) {
		c.sessionID = sessionID
		c.memoryMode = memoryMode
	}
}

func WithCooldown(cooldown time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if cooldown > 0 {
			c.cooldown = cooldown
		}
	}
}

func WithSynthesisOptions(opts ...texttospeech.SynthesisOption) CoordinatorOption {
	return func(c *Coordinator) { c.synthOptions = opts }
}

// WithTurnCallback observes every turn appended to the transcript log.
func WithTurnCallback(callback func(Turn)) CoordinatorOption {
	return func(c *Coordinator) { c.callbacks.onTurn = callback }
}

// WithStateCallback observes coordinator state snapshots as they change. The
// UI observes this; it never drives state directly.
func WithStateCallback(callback func(State)) CoordinatorOption {
	return func(c *Coordinator) { c.callbacks.onState = callback }
}

func WithModeSwitchCallback(callback func(mode Mode, confirmation string)) CoordinatorOption {
	return func(c *Coordinator) { c.callbacks.onModeSwitch = callback }
}

func WithInterimTranscriptCallback(callback func(transcript string)) CoordinatorOption {
	return func(c *Coordinator) { c.callbacks.onInterimTranscript = callback }
}

// WithAmplitudeCallback receives visualization levels for single-shot
// playback.
func WithAmplitudeCallback(callback func([]AmplitudeSample)) CoordinatorOption {
	return func(c *Coordinator) { c.callbacks.onAmplitude = callback }
}

type coordinatorCallbacks struct {
	onTurn              func(Turn)
	onState             func(State)
	onModeSwitch        func(Mode, string)
	onInterimTranscript func(string)
	onAmplitude         func([]AmplitudeSample)
}
