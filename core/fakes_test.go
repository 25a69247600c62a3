package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/audio"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

var testEncoding = audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}

// payloadOf builds a payload that plays for the given duration at the test
// encoding.
func payloadOf(duration time.Duration) []byte {
	return make([]byte, audio.Samples(duration, testEncoding))
}

type fakeCue struct {
	name     string
	callback func(string)
}

// fakeSink records sent audio and lets tests control when playback cues
// fire. With autoFire set, cues fire as soon as they are registered, which
// simulates a sink that drains instantly.
type fakeSink struct {
	mu       sync.Mutex
	sent     [][]byte
	cues     []fakeCue
	cleared  int
	sendErr  error
	autoFire bool
}

func (s *fakeSink) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, audio)
	return nil
}

func (s *fakeSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeSink) EncodingInfo() audio.EncodingInfo { return testEncoding }

func (s *fakeSink) Mark(name string, callback func(string)) error {
	s.mu.Lock()
	autoFire := s.autoFire
	if !autoFire {
		s.cues = append(s.cues, fakeCue{name: name, callback: callback})
	}
	s.mu.Unlock()

	if autoFire {
		go callback(name)
	}
	return nil
}

func (s *fakeSink) fireCues() {
	s.mu.Lock()
	cues := s.cues
	s.cues = nil
	s.mu.Unlock()

	for _, cue := range cues {
		cue.callback(cue.name)
	}
}

func (s *fakeSink) sentPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// plainSink is a sink without playback marks, forcing duration-based
// completion.
type plainSink struct {
	mu      sync.Mutex
	sent    [][]byte
	cleared int
}

func (s *plainSink) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, audio)
	return nil
}

func (s *plainSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *plainSink) EncodingInfo() audio.EncodingInfo { return testEncoding }

type fakeSynthesizer struct {
	synthesize func(text string) (*texttospeech.Speech, error)
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) (*texttospeech.Speech, error) {
	return s.synthesize(text)
}
