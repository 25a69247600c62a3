package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

// Client exposes the default capture and playback devices through malgo. It
// satisfies both the audio source and audio sink contracts of the
// orchestration package, including playback marks for end-of-speech
// detection.
type Client struct {
	// audioContext is kept only so it can be uninitialized on Close
	audioContext *malgo.AllocatedContext
	playbackDevice
	captureDevice
}

type Option func(*options)

type options struct {
	playbackEncoding audio.EncodingInfo
}

// WithPlaybackEncoding runs the playback device at the given encoding. It
// must match what the synthesizer produces; payloads are copied to the
// device unconverted.
func WithPlaybackEncoding(encodingInfo audio.EncodingInfo) Option {
	return func(o *options) { o.playbackEncoding = encodingInfo }
}

func NewClient(opts ...Option) (*Client, error) {
	config := options{playbackEncoding: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&config)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackDevice.Init(audioCtx, config.playbackEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := client.playbackDevice.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureDevice.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureDevice.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureDevice.Stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.playbackDevice.Start()
}

func (c *Client) StopPlayback() error {
	return c.playbackDevice.Stop()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackDevice.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackDevice.ClearBuffer()
}

// Mark registers a named cue after the audio queued so far. The callback is
// invoked with the cue name once the device consumes that audio.
func (c *Client) Mark(name string, callback func(string)) error {
	return c.playbackDevice.Mark(name, callback)
}

func (c *Client) Close() {
	_ = c.captureDevice.Uninit()
	_ = c.playbackDevice.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

// EncodingInfo reports the encoding the playback device consumes.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.playbackDevice.encoding
}
