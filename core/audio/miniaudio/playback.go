package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

// playbackDevice feeds queued speech audio to the default output device and
// reports playback cues so speech players can observe when audio up to a
// given position has actually left the buffer.
type playbackDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encoding     audio.EncodingInfo

	mu sync.Mutex

	// bufferMu guards queued and cues. The device data callback contends
	// with SendAudio, Mark and ClearBuffer for both.
	bufferMu sync.Mutex
	queued   []byte
	cues     []playbackCue
}

type playbackCue struct {
	name     string
	position int
	callback func(string)
}

// deviceConfig builds the malgo playback configuration for the given
// encoding. Only 16-bit linear PCM payloads can be sent to the device
// unconverted.
func deviceConfig(encodingInfo audio.EncodingInfo) (malgo.DeviceConfig, error) {
	if encodingInfo.Format != audio.EncodingLinear16 {
		return malgo.DeviceConfig{}, fmt.Errorf("unsupported playback format: %q", encodingInfo.Format.Name())
	}
	if encodingInfo.SampleRate <= 0 {
		return malgo.DeviceConfig{}, fmt.Errorf("invalid playback sample rate: %d", encodingInfo.SampleRate)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encodingInfo.SampleRate)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encodingInfo.SampleRate / 10) // ~100ms of audio
	config.Periods = 4
	return config, nil
}

func (d *playbackDevice) Init(audioContext *malgo.AllocatedContext, encodingInfo audio.EncodingInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	config, err := deviceConfig(encodingInfo)
	if err != nil {
		return err
	}

	d.config = config
	d.encoding = encodingInfo
	d.audioContext = audioContext

	bytesPerFrame := malgo.SampleSizeInBytes(d.config.Playback.Format) * int(d.config.Playback.Channels)
	if d.device, err = malgo.InitDevice(
		d.audioContext.Context,
		d.config,
		malgo.DeviceCallbacks{Data: d.fillOutput(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (d *playbackDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (d *playbackDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	d.ClearBuffer()
	return nil
}

func (d *playbackDevice) SendAudio(audio []byte) error {
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	} else if !d.device.IsStarted() {
		return fmt.Errorf("playback device not started")
	}

	d.bufferMu.Lock()
	defer d.bufferMu.Unlock()
	d.queued = append(d.queued, audio...)
	return nil
}

func (d *playbackDevice) ClearBuffer() {
	d.bufferMu.Lock()
	defer d.bufferMu.Unlock()
	d.queued = nil
	d.cues = nil
}

// Mark registers a cue at the current end of the queued audio. The callback
// fires once the device has consumed everything queued before it.
func (d *playbackDevice) Mark(name string, callback func(string)) error {
	d.bufferMu.Lock()
	defer d.bufferMu.Unlock()
	d.cues = append(d.cues, playbackCue{
		name:     name,
		position: len(d.queued),
		callback: callback,
	})
	return nil
}

func (d *playbackDevice) Uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	d.device.Uninit()
	d.device = nil

	return nil
}

func (d *playbackDevice) fillOutput(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		d.bufferMu.Lock()
		consumed := copy(pOutput, d.queued)
		d.queued = d.queued[consumed:]
		fired := d.advanceCues(consumed)
		d.bufferMu.Unlock()

		if len(fired) == 0 {
			return
		}
		// Callbacks run off the audio thread; the data callback must never
		// block on consumer code.
		go func() {
			for _, cue := range fired {
				cue.callback(cue.name)
			}
		}()
	}
}

// advanceCues moves every cue forward by the bytes just consumed and carves
// off the ones whose preceding audio has fully played. Cue positions are
// appended in queue order, so the passed cues always form a prefix. Caller
// holds bufferMu.
func (d *playbackDevice) advanceCues(consumed int) []playbackCue {
	for i := range d.cues {
		d.cues[i].position -= consumed
	}

	passed := 0
	for passed < len(d.cues) && d.cues[passed].position <= 0 {
		passed++
	}
	if passed == 0 {
		return nil
	}

	fired := append([]playbackCue(nil), d.cues[:passed]...)
	d.cues = d.cues[passed:]
	return fired
}
