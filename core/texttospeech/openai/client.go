// Package openai synthesizes speech directly against the OpenAI speech API,
// for deployments that skip the voice gateway.
package openai

import (
	"context"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

// pcmSampleRate is the fixed sample rate of OpenAI's raw pcm response format.
const pcmSampleRate = 24000

type Client struct {
	client   *goopenai.Client
	defaults texttospeech.SynthesisOptions
}

func NewClient(apiKey string, opts ...texttospeech.SynthesisOption) *Client {
	defaults := texttospeech.SynthesisOptions{
		Voice: string(goopenai.VoiceAlloy),
		Model: string(goopenai.TTSModel1),
		Speed: 0.85,
	}
	for _, opt := range opts {
		opt(&defaults)
	}

	return &Client{
		client:   goopenai.NewClient(apiKey),
		defaults: defaults,
	}
}

func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (*texttospeech.Speech, error) {
	options := c.defaults
	for _, opt := range opts {
		opt(&options)
	}

	resp, err := c.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(options.Model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(options.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
		Speed:          options.Speed,
	})
	if err != nil {
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}
	defer resp.Close()

	payload, err := io.ReadAll(resp)
	if err != nil {
		return nil, &texttospeech.SynthesisError{Text: text, Err: fmt.Errorf("error reading audio payload: %w", err)}
	}
	if len(payload) == 0 {
		return nil, &texttospeech.SynthesisError{Text: text, Err: fmt.Errorf("empty audio payload")}
	}

	return &texttospeech.Speech{
		Audio:        payload,
		EncodingInfo: c.EncodingInfo(),
	}, nil
}

// EncodingInfo reports the encoding of every payload this client returns.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: pcmSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
