// Package gateway synthesizes speech through a voice gateway service that
// fronts the actual TTS vendor. The gateway accepts a JSON request and
// responds with the raw audio payload.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

const (
	defaultVoice = "alloy"
	defaultModel = "tts-1"
	defaultSpeed = 0.85
)

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	defaults texttospeech.SynthesisOptions
}

func NewClient(endpoint string, apiKey string, opts ...texttospeech.SynthesisOption) *Client {
	defaults := texttospeech.SynthesisOptions{
		Voice:        defaultVoice,
		Model:        defaultModel,
		Speed:        defaultSpeed,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&defaults)
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		defaults: defaults,
	}
}

// EncodingInfo reports the encoding this client's payloads use unless a
// synthesis call overrides it.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.defaults.EncodingInfo
}

type synthesisRequestBody struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Model string  `json:"model"`
}

func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (*texttospeech.Speech, error) {
	options := c.defaults
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", options.Voice),
		attribute.String("request.model", options.Model),
		attribute.Int("request.text_length", len(text)),
	)

	requestBodyBytes, err := sonic.Marshal(synthesisRequestBody{
		Text:  text,
		Voice: options.Voice,
		Speed: options.Speed,
		Model: options.Model,
	})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/voice/synthesize", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading audio payload: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}
	if len(payload) == 0 {
		err := fmt.Errorf("empty audio payload")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &texttospeech.SynthesisError{Text: text, Err: err}
	}

	span.SetAttributes(attribute.Int("response.payload_bytes", len(payload)))
	return &texttospeech.Speech{
		Audio:        payload,
		EncodingInfo: options.EncodingInfo,
	}, nil
}
