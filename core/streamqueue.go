package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

type speechChunk struct {
	text    string
	speech  *texttospeech.Speech
	skipped bool
}

// streamingSpeechQueue plays sentence chunks strictly in sequence-index
// order while their synthesis completes out of order. Chunks are sent to the
// sink as soon as their turn comes, so playback stays gapless; completion
// fires only after the stream has ended, every outstanding synthesis has
// resolved, and the sink has drained.
type streamingSpeechQueue struct {
	sink SpeechSink

	mu            sync.Mutex
	chunks        map[int]*speechChunk
	nextIndex     int
	nextToSend    int
	pending       int
	streamEnded   bool
	playbackEnds  time.Time
	firstAudio    bool

	updateSignal chan struct{}

	onAudioStarted func()
	onComplete     func(error)
	completeOnce   sync.Once
}

func newStreamingSpeechQueue(sink SpeechSink, onAudioStarted func(), onComplete func(error)) *streamingSpeechQueue {
	return &streamingSpeechQueue{
		sink:           sink,
		chunks:         map[int]*speechChunk{},
		updateSignal:   make(chan struct{}, 1),
		onAudioStarted: onAudioStarted,
		onComplete:     onComplete,
	}
}

// expect reserves the next sequence index for a sentence whose synthesis is
// about to start and increments the pending counter.
func (q *streamingSpeechQueue) expect(text string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.nextIndex
	q.nextIndex++
	q.pending++
	q.chunks[index] = &speechChunk{text: text}
	return index
}

// enqueue hands over a synthesized chunk. If it is the next in sequence it
// will be sent to the sink immediately.
func (q *streamingSpeechQueue) enqueue(index int, speech *texttospeech.Speech) {
	q.mu.Lock()
	if chunk, ok := q.chunks[index]; ok {
		chunk.speech = speech
		q.pending--
	}
	q.mu.Unlock()
	q.signalUpdate()
}

// skip records a failed synthesis. The chunk is dropped, the pending counter
// still comes down, and playback moves on to the next index.
func (q *streamingSpeechQueue) skip(index int, err error) {
	q.mu.Lock()
	if chunk, ok := q.chunks[index]; ok {
		logger.Warn("Skipping speech chunk after failed synthesis",
			"index", index, "text", chunk.text, "error", err)
		chunk.skipped = true
		q.pending--
	}
	q.mu.Unlock()
	q.signalUpdate()
}

// markStreamingComplete signals that no further chunks will be reserved.
// Callers must have resolved every outstanding synthesis before the queue
// will finalize; the pending counter enforces that.
func (q *streamingSpeechQueue) markStreamingComplete() {
	q.mu.Lock()
	q.streamEnded = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *streamingSpeechQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}

// run is the queue's single consumer. It returns once the utterance finished
// playing, errored, or the context was cancelled.
func (q *streamingSpeechQueue) run(ctx context.Context) error {
	for {
		sent, done, err := q.advance()
		if err != nil {
			q.sink.ClearBuffer()
			q.finalize(err)
			return err
		}
		if done {
			if err := q.awaitDrain(ctx); err != nil {
				q.finalize(err)
				return err
			}
			q.finalize(nil)
			return nil
		}
		if sent {
			continue
		}

		select {
		case <-ctx.Done():
			q.sink.ClearBuffer()
			q.finalize(ctx.Err())
			return ctx.Err()
		case <-q.updateSignal:
		}
	}
}

// advance sends every chunk that is ready in sequence order. It reports
// whether anything was sent and whether the queue has fully finished.
func (q *streamingSpeechQueue) advance() (sent, done bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		chunk, ok := q.chunks[q.nextToSend]
		if !ok || (chunk.speech == nil && !chunk.skipped) {
			break
		}

		delete(q.chunks, q.nextToSend)
		q.nextToSend++

		if chunk.skipped {
			continue
		}

		if sendErr := q.sink.SendAudio(chunk.speech.Audio); sendErr != nil {
			return sent, false, &PlaybackError{Stage: playbackStagePlayback, Err: sendErr}
		}
		sent = true

		if !q.firstAudio {
			q.firstAudio = true
			if q.onAudioStarted != nil {
				go q.onAudioStarted()
			}
		}

		duration := chunk.speech.Duration()
		now := time.Now()
		if q.playbackEnds.Before(now) {
			q.playbackEnds = now
		}
		q.playbackEnds = q.playbackEnds.Add(duration)
	}

	done = q.streamEnded && q.pending == 0 && q.nextToSend >= q.nextIndex
	return sent, done, nil
}

// awaitDrain waits until the sink has actually played everything that was
// sent. Sinks that support playback marks report precisely; otherwise the
// accumulated payload durations bound the wait.
func (q *streamingSpeechQueue) awaitDrain(ctx context.Context) error {
	q.mu.Lock()
	playbackEnds := q.playbackEnds
	firstAudio := q.firstAudio
	q.mu.Unlock()

	if !firstAudio {
		return nil
	}

	if markable, ok := q.sink.(MarkableSpeechSink); ok {
		drained := make(chan struct{})
		if err := markable.Mark("utterance-end", func(string) { close(drained) }); err == nil {
			select {
			case <-drained:
				return nil
			case <-ctx.Done():
				q.sink.ClearBuffer()
				return ctx.Err()
			case <-time.After(time.Until(playbackEnds) + playbackGrace):
				return &PlaybackError{Stage: playbackStagePlayback, Err: fmt.Errorf("sink never drained")}
			}
		}
	}

	select {
	case <-time.After(time.Until(playbackEnds)):
		return nil
	case <-ctx.Done():
		q.sink.ClearBuffer()
		return ctx.Err()
	}
}

func (q *streamingSpeechQueue) finalize(err error) {
	q.completeOnce.Do(func() {
		if q.onComplete != nil {
			q.onComplete(err)
		}
	})
}
