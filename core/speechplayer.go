package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

const (
	speechStartTimeout = 5 * time.Second
	// playbackGrace pads the payload-derived duration before a playback is
	// declared stalled.
	playbackGrace = 30 * time.Second
)

// speechPlayer synthesizes one complete utterance and plays it through the
// sink. The playback deadline comes from the actual payload duration, never
// from text length estimates.
type speechPlayer struct {
	synthesizer texttospeech.Synthesizer
	sink        SpeechSink

	startTimeout time.Duration
	grace        time.Duration

	onAudioStarted func()
	onAmplitude    func([]AmplitudeSample)
}

func newSpeechPlayer(synthesizer texttospeech.Synthesizer, sink SpeechSink) *speechPlayer {
	return &speechPlayer{
		synthesizer:  synthesizer,
		sink:         sink,
		startTimeout: speechStartTimeout,
		grace:        playbackGrace,
	}
}

// Play blocks until the utterance has fully played, the sink failed, or the
// context was cancelled. Synthesis failures come back as the synthesizer's
// own typed error; everything after that is a PlaybackError.
func (p *speechPlayer) Play(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	ctx, span := tracer.Start(ctx, "play utterance")
	defer span.End()

	speech, err := p.synthesizer.Synthesize(ctx, text, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	encodingInfo := speech.EncodingInfo
	if encodingInfo.IsZero() {
		encodingInfo = p.sink.EncodingInfo()
	}
	duration := audio.Duration(speech.Audio, encodingInfo)

	if p.onAmplitude != nil {
		go p.onAmplitude(analyzeAmplitude(speech.Audio, encodingInfo))
	}

	markable, hasMarks := p.sink.(MarkableSpeechSink)
	var started, ended chan struct{}
	if hasMarks {
		started = make(chan struct{})
		if err := markable.Mark("utterance-start", func(string) { close(started) }); err != nil {
			hasMarks = false
		}
	}

	if err := p.sink.SendAudio(speech.Audio); err != nil {
		err = &PlaybackError{Stage: playbackStagePlayback, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if hasMarks {
		ended = make(chan struct{})
		if err := markable.Mark("utterance-end", func(string) { close(ended) }); err != nil {
			hasMarks = false
		}
	}

	if !hasMarks {
		// No playback marks to observe; treat the send as the start and
		// the payload duration as the whole playback.
		if p.onAudioStarted != nil {
			p.onAudioStarted()
		}
		select {
		case <-time.After(duration):
			return nil
		case <-ctx.Done():
			p.sink.ClearBuffer()
			return ctx.Err()
		}
	}

	select {
	case <-started:
		span.AddEvent("playback started", trace.WithAttributes(
			attribute.Float64("utterance.duration", duration.Seconds()),
		))
		if p.onAudioStarted != nil {
			p.onAudioStarted()
		}
	case <-time.After(p.startTimeout):
		p.sink.ClearBuffer()
		err := &PlaybackError{Stage: playbackStageStart, Err: fmt.Errorf("playback did not start within %s", p.startTimeout)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	case <-ctx.Done():
		p.sink.ClearBuffer()
		return ctx.Err()
	}

	select {
	case <-ended:
		return nil
	case <-time.After(duration + p.grace):
		p.sink.ClearBuffer()
		err := &PlaybackError{Stage: playbackStagePlayback, Err: fmt.Errorf("playback did not finish within %s", duration+p.grace)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	case <-ctx.Done():
		p.sink.ClearBuffer()
		return ctx.Err()
	}
}
