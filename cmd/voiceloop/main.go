// voiceloop is a terminal front end for the voice conversation core. It
// observes coordinator state and submits typed turns; it never drives the
// turn-taking itself.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/voiceloop-ai/voiceloop-core/core"
	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/audio/miniaudio"
	"github.com/voiceloop-ai/voiceloop-core/core/reply"
	"github.com/voiceloop-ai/voiceloop-core/core/speechtotext/deepgram"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech/gateway"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech/openai"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voiceloop:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []orchestration.CoordinatorOption{
		orchestration.WithReplyClient(reply.NewClient(cfg.ReplyEndpoint, cfg.ReplyAPIKey)),
		orchestration.WithIdentity(cfg.UserID, cfg.UserName),
		orchestration.WithSession("", cfg.MemoryMode),
		orchestration.WithMode(orchestration.Mode(cfg.Mode)),
	}

	if !cfg.TextOnly {
		synthesizer, playbackEncoding := newSynthesizer(cfg)

		// The playback device runs at whatever encoding the synthesizer
		// produces; payloads go to the device unconverted.
		audioClient, err := miniaudio.NewClient(miniaudio.WithPlaybackEncoding(playbackEncoding))
		if err != nil {
			return fmt.Errorf("failed to open audio devices: %w", err)
		}
		defer audioClient.Close()

		opts = append(opts,
			orchestration.WithSpeechSink(audioClient),
			orchestration.WithAudioSource(audioClient),
			orchestration.WithTranscriber(deepgram.NewTranscriptionClient()),
			orchestration.WithSynthesizer(synthesizer),
			orchestration.WithSynthesisOptions(texttospeech.WithVoice(cfg.Voice)),
		)
		if cfg.StreamReplies {
			opts = append(opts, orchestration.WithStreamedReplies())
		}
	}

	var program *tea.Program
	opts = append(opts,
		orchestration.WithTurnCallback(func(turn orchestration.Turn) {
			if program != nil {
				program.Send(turnMsg(turn))
			}
		}),
		orchestration.WithStateCallback(func(state orchestration.State) {
			if program != nil {
				program.Send(stateMsg(state))
			}
		}),
		orchestration.WithInterimTranscriptCallback(func(transcript string) {
			if program != nil {
				program.Send(interimMsg(transcript))
			}
		}),
		orchestration.WithModeSwitchCallback(func(mode orchestration.Mode, confirmation string) {
			if program != nil {
				program.Send(modeMsg{mode: mode, confirmation: confirmation})
			}
		}),
	)

	coordinator := orchestration.NewCoordinator(opts...)
	program = tea.NewProgram(newModel(coordinator), tea.WithAltScreen())

	go func() {
		if err := coordinator.Run(ctx); err != nil && ctx.Err() == nil {
			program.Send(fatalMsg{err: err})
		}
	}()

	_, err = program.Run()
	return err
}

func newSynthesizer(cfg config) (texttospeech.Synthesizer, audio.EncodingInfo) {
	if cfg.TTSEndpoint != "" {
		client := gateway.NewClient(cfg.TTSEndpoint, cfg.TTSAPIKey, texttospeech.WithVoice(cfg.Voice))
		return client, client.EncodingInfo()
	}
	client := openai.NewClient(cfg.OpenAIAPIKey, texttospeech.WithVoice(cfg.Voice))
	return client, client.EncodingInfo()
}
