package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

func testSpeech(duration time.Duration) *texttospeech.Speech {
	return &texttospeech.Speech{Audio: payloadOf(duration), EncodingInfo: testEncoding}
}

func TestStreamQueuePlaysInSequenceOrder(t *testing.T) {
	sink := &fakeSink{autoFire: true}
	completed := make(chan error, 1)
	queue := newStreamingSpeechQueue(sink, nil, func(err error) { completed <- err })

	// Three distinct payload sizes so order is observable.
	speeches := []*texttospeech.Speech{
		testSpeech(10 * time.Millisecond),
		testSpeech(20 * time.Millisecond),
		testSpeech(30 * time.Millisecond),
	}
	indices := make([]int, len(speeches))
	for i := range speeches {
		indices[i] = queue.expect(fmt.Sprintf("sentence %d", i))
	}

	go queue.run(context.Background())

	// Synthesis completes in a scrambled order.
	for _, i := range []int{2, 0, 1} {
		queue.enqueue(indices[i], speeches[i])
	}
	queue.markStreamingComplete()

	select {
	case err := <-completed:
		if err != nil {
			t.Fatalf("Expected clean completion, got error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Queue did not complete in time")
	}

	sent := sink.sentPayloads()
	if len(sent) != 3 {
		t.Fatalf("Expected 3 payloads sent, got %d", len(sent))
	}
	for i, payload := range sent {
		if len(payload) != len(speeches[i].Audio) {
			t.Errorf("Payload %d sent out of order (got %d bytes, expected %d)",
				i, len(payload), len(speeches[i].Audio))
		}
	}
}

func TestStreamQueueDoesNotCompleteWithPendingSynthesis(t *testing.T) {
	sink := &fakeSink{autoFire: true}
	var completions atomic.Int32
	queue := newStreamingSpeechQueue(sink, nil, func(error) { completions.Add(1) })

	first := queue.expect("first sentence")
	second := queue.expect("second sentence")

	go queue.run(context.Background())

	queue.enqueue(first, testSpeech(10*time.Millisecond))
	queue.markStreamingComplete()

	time.Sleep(100 * time.Millisecond)
	if completions.Load() != 0 {
		t.Fatal("Queue completed while a synthesis request was still pending")
	}

	queue.enqueue(second, testSpeech(10*time.Millisecond))

	deadline := time.Now().Add(time.Second)
	for completions.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if completions.Load() != 1 {
		t.Fatalf("Expected exactly one completion, got %d", completions.Load())
	}
}

func TestStreamQueueSkipsFailedChunks(t *testing.T) {
	sink := &fakeSink{autoFire: true}
	completed := make(chan error, 1)
	queue := newStreamingSpeechQueue(sink, nil, func(err error) { completed <- err })

	first := queue.expect("first")
	second := queue.expect("second")
	third := queue.expect("third")

	go queue.run(context.Background())

	queue.enqueue(first, testSpeech(10*time.Millisecond))
	queue.skip(second, errors.New("synthesis refused"))
	queue.enqueue(third, testSpeech(30*time.Millisecond))
	queue.markStreamingComplete()

	select {
	case err := <-completed:
		if err != nil {
			t.Fatalf("Expected a skipped chunk not to fail the queue, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Queue did not complete in time")
	}

	if sent := sink.sentPayloads(); len(sent) != 2 {
		t.Fatalf("Expected 2 payloads after one skip, got %d", len(sent))
	}
}

func TestStreamQueuePlaybackFailureCancelsRemainder(t *testing.T) {
	sink := &fakeSink{autoFire: true, sendErr: errors.New("device gone")}
	completed := make(chan error, 1)
	queue := newStreamingSpeechQueue(sink, nil, func(err error) { completed <- err })

	index := queue.expect("only sentence")
	go queue.run(context.Background())
	queue.enqueue(index, testSpeech(10*time.Millisecond))
	queue.markStreamingComplete()

	select {
	case err := <-completed:
		var playbackErr *PlaybackError
		if !errors.As(err, &playbackErr) {
			t.Fatalf("Expected a PlaybackError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Queue did not run completion cleanup after playback failure")
	}

	sink.mu.Lock()
	cleared := sink.cleared
	sink.mu.Unlock()
	if cleared == 0 {
		t.Error("Expected the sink buffer to be cleared after playback failure")
	}
}

func TestStreamQueueReportsFirstAudio(t *testing.T) {
	sink := &fakeSink{autoFire: true}
	started := make(chan struct{}, 2)
	completed := make(chan error, 1)
	queue := newStreamingSpeechQueue(sink, func() { started <- struct{}{} }, func(err error) { completed <- err })

	first := queue.expect("first")
	second := queue.expect("second")

	go queue.run(context.Background())
	queue.enqueue(first, testSpeech(10*time.Millisecond))
	queue.enqueue(second, testSpeech(10*time.Millisecond))
	queue.markStreamingComplete()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Expected the audio-started callback to fire")
	}

	<-completed
	select {
	case <-started:
		t.Error("Expected the audio-started callback to fire only once")
	default:
	}
}
