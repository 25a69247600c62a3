package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

// captureDevice streams microphone audio to a single listener. The turn
// coordinator starts and stops it around agent speech so the agent never
// hears itself.
type captureDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	onAudio func(audio []byte)

	mu sync.Mutex
}

func (d *captureDevice) Init(audioContext *malgo.AllocatedContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	d.config = malgo.DefaultDeviceConfig(malgo.Capture)
	d.config.SampleRate = rate
	d.config.Capture.Format = format
	d.config.Capture.Channels = uint32(channels)
	d.config.Alsa.NoMMap = 1
	d.config.PerformanceProfile = malgo.LowLatency
	d.config.PeriodSizeInFrames = 480
	d.config.Periods = 3

	d.audioContext = audioContext

	var err error
	d.device, err = malgo.InitDevice(d.audioContext.Context, d.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			if d.onAudio != nil {
				d.onAudio(pInput[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (d *captureDevice) Start(onAudio func(audio []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	} else if d.device.IsStarted() {
		return nil
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	d.onAudio = onAudio
	return nil
}

func (d *captureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	} else if !d.device.IsStarted() {
		return nil
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	d.onAudio = nil
	return nil
}

func (d *captureDevice) Uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}

	d.onAudio = nil
	return nil
}
