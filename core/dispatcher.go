package orchestration

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voiceloop-ai/voiceloop-core/core/reply"
)

const dispatchTimeout = 60 * time.Second

// dispatchService is what the coordinator needs from the response
// dispatcher. Satisfied by responseDispatcher in production.
type dispatchService interface {
	Dispatch(ctx context.Context, request reply.Request) (*reply.Response, error)
	DispatchStream(ctx context.Context, request reply.Request, onSentence func(text string)) (string, error)
}

// responseDispatcher sends one request to the reply service and normalizes
// either transport mode into a single logical reply. Single-flight is
// enforced by the coordinator, not here.
type responseDispatcher struct {
	client *reply.Client

	timeout    time.Duration
	structured bool
}

func newResponseDispatcher(client *reply.Client, structured bool) *responseDispatcher {
	return &responseDispatcher{
		client:     client,
		timeout:    dispatchTimeout,
		structured: structured,
	}
}

func (d *responseDispatcher) Dispatch(ctx context.Context, request reply.Request) (*reply.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.structured {
		return d.client.DispatchStructured(ctx, request)
	}
	return d.client.Dispatch(ctx, request)
}

// DispatchStream streams the reply, emitting each completed sentence in
// arrival order, and returns the full accumulated text. Restoring playback
// order across out-of-order synthesis is the speech queue's job, not ours.
func (d *responseDispatcher) DispatchStream(ctx context.Context, request reply.Request, onSentence func(text string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "dispatch streamed reply")
	defer span.End()

	segmenter := sentenceSegmenter{}
	fullText := strings.Builder{}
	sentences := 0
	requestedAt := time.Now()

	for delta, err := range d.client.DispatchStream(request).Chunks(ctx) {
		if err != nil {
			if errors.Is(err, reply.ErrRequestTimeout) || errors.Is(err, reply.ErrNetworkUnreachable) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fullText.String(), err
			}
			// Malformed frames are logged and skipped; the stream goes on.
			logger.Warn("Dropping malformed stream frame", "error", err)
			continue
		}

		fullText.WriteString(delta)
		for _, sentence := range segmenter.push(delta) {
			if sentences == 0 {
				span.AddEvent("first sentence", trace.WithAttributes(
					attribute.Float64("response.time_to_first_sentence", time.Since(requestedAt).Seconds()),
				))
			}
			sentences++
			onSentence(sentence)
		}
	}

	if tail := segmenter.flush(); tail != "" {
		sentences++
		onSentence(tail)
	}

	span.SetAttributes(
		attribute.Int("response.sentences", sentences),
		attribute.Int("response.text_length", fullText.Len()),
	)
	return fullText.String(), nil
}

// sentenceBoundary is terminal punctuation followed by whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]+\s`)

// sentenceSegmenter accumulates streamed text deltas and carves off complete
// sentences, buffering the trailing partial until more text arrives or the
// stream ends.
type sentenceSegmenter struct {
	buffer string
}

func (s *sentenceSegmenter) push(delta string) []string {
	s.buffer += delta

	var sentences []string
	for {
		boundary := sentenceBoundary.FindStringIndex(s.buffer)
		if boundary == nil {
			break
		}

		sentence := strings.TrimSpace(s.buffer[:boundary[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		s.buffer = s.buffer[boundary[1]:]
	}

	return sentences
}

func (s *sentenceSegmenter) flush() string {
	tail := strings.TrimSpace(s.buffer)
	s.buffer = ""
	return tail
}
