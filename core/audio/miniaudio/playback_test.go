package miniaudio

import (
	"bytes"
	"testing"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
)

func TestDeviceConfigFollowsEncoding(t *testing.T) {
	config, err := deviceConfig(audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if config.SampleRate != 24000 {
		t.Errorf("Expected the device to run at the synthesizer rate, got %d", config.SampleRate)
	}
	if config.PeriodSizeInFrames != 2400 {
		t.Errorf("Expected ~100ms periods, got %d frames", config.PeriodSizeInFrames)
	}
}

func TestDeviceConfigRejectsUnsupportedEncodings(t *testing.T) {
	if _, err := deviceConfig(audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}); err == nil {
		t.Error("Expected an error for a mulaw playback encoding")
	}
	if _, err := deviceConfig(audio.EncodingInfo{Format: audio.EncodingLinear16}); err == nil {
		t.Error("Expected an error for a zero sample rate")
	}
}

func TestFillOutputConsumesQueueInOrder(t *testing.T) {
	d := &playbackDevice{}
	d.queued = []byte{1, 2, 3, 4, 5, 6}
	proc := d.fillOutput(2)

	out := make([]byte, 4)
	proc(out, nil, 2)
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Errorf("Expected the first four queued bytes, got %v", out)
	}

	out = make([]byte, 4)
	proc(out, nil, 2)
	if !bytes.Equal(out[:2], []byte{5, 6}) {
		t.Errorf("Expected the queue tail, got %v", out)
	}
	if len(d.queued) != 0 {
		t.Errorf("Expected the queue drained, got %d bytes left", len(d.queued))
	}
}

func TestCueFiresAfterPrecedingAudioConsumed(t *testing.T) {
	d := &playbackDevice{}
	d.queued = make([]byte, 8)

	fired := make(chan string, 1)
	if err := d.Mark("utterance-end", func(name string) { fired <- name }); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	proc := d.fillOutput(2)
	proc(make([]byte, 4), nil, 2)
	select {
	case name := <-fired:
		t.Fatalf("Cue %q fired with audio still queued", name)
	case <-time.After(20 * time.Millisecond):
	}

	proc(make([]byte, 4), nil, 2)
	select {
	case name := <-fired:
		if name != "utterance-end" {
			t.Errorf("Expected the cue name, got %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("Cue never fired after its audio was consumed")
	}
}

func TestCueOnEmptyQueueFiresOnNextCallback(t *testing.T) {
	d := &playbackDevice{}

	fired := make(chan string, 1)
	if err := d.Mark("utterance-end", func(name string) { fired <- name }); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	d.fillOutput(2)(make([]byte, 4), nil, 2)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Cue with no preceding audio never fired")
	}
}

func TestCuesFireInQueueOrder(t *testing.T) {
	d := &playbackDevice{}
	fired := make(chan string, 2)

	d.queued = make([]byte, 2)
	_ = d.Mark("first", func(name string) { fired <- name })
	d.queued = append(d.queued, make([]byte, 2)...)
	_ = d.Mark("second", func(name string) { fired <- name })

	d.fillOutput(2)(make([]byte, 8), nil, 4)

	for _, expected := range []string{"first", "second"} {
		select {
		case name := <-fired:
			if name != expected {
				t.Errorf("Expected cue %q, got %q", expected, name)
			}
		case <-time.After(time.Second):
			t.Fatalf("Cue %q never fired", expected)
		}
	}
}

func TestClearBufferDropsQueueAndCues(t *testing.T) {
	d := &playbackDevice{}
	d.queued = make([]byte, 8)
	_ = d.Mark("stale", func(string) { t.Error("Cleared cue must not fire") })

	d.ClearBuffer()
	d.fillOutput(2)(make([]byte, 8), nil, 4)

	if len(d.queued) != 0 || len(d.cues) != 0 {
		t.Errorf("Expected an empty buffer, got %d bytes and %d cues", len(d.queued), len(d.cues))
	}
	time.Sleep(20 * time.Millisecond)
}
