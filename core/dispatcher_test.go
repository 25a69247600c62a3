package orchestration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voiceloop-ai/voiceloop-core/core/reply"
)

func TestSentenceSegmenter(t *testing.T) {
	segmenter := sentenceSegmenter{}

	var sentences []string
	for _, delta := range []string{"Hello. ", "How are ", "you today?"} {
		sentences = append(sentences, segmenter.push(delta)...)
	}
	if tail := segmenter.flush(); tail != "" {
		sentences = append(sentences, tail)
	}

	if len(sentences) != 2 {
		t.Fatalf("Expected 2 sentences, got %d: %v", len(sentences), sentences)
	}
	if sentences[0] != "Hello." {
		t.Errorf("Expected first sentence %q, got %q", "Hello.", sentences[0])
	}
	if sentences[1] != "How are you today?" {
		t.Errorf("Expected second sentence %q, got %q", "How are you today?", sentences[1])
	}
}

func TestSentenceSegmenterSplitsMidDelta(t *testing.T) {
	segmenter := sentenceSegmenter{}

	sentences := segmenter.push("One! Two? Three. And the rest")
	if len(sentences) != 3 {
		t.Fatalf("Expected 3 sentences, got %d: %v", len(sentences), sentences)
	}
	if tail := segmenter.flush(); tail != "And the rest" {
		t.Errorf("Expected trailing partial %q, got %q", "And the rest", tail)
	}
}

func TestSentenceSegmenterHandlesEllipsis(t *testing.T) {
	segmenter := sentenceSegmenter{}

	sentences := segmenter.push("Well... let me think. Done")
	if len(sentences) != 2 {
		t.Fatalf("Expected 2 sentences, got %d: %v", len(sentences), sentences)
	}
	if sentences[0] != "Well..." {
		t.Errorf("Expected %q, got %q", "Well...", sentences[0])
	}
}

func TestDispatchStreamEmitsSentencesInArrivalOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, text := range []string{"Hello. ", "How are ", "you today?"} {
			fmt.Fprintf(w, "data: {\"text\": %q}\n\n", text)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	dispatcher := newResponseDispatcher(reply.NewClient(server.URL, ""), false)

	var sentences []string
	fullText, err := dispatcher.DispatchStream(context.Background(), reply.Request{Message: "Hi"}, func(text string) {
		sentences = append(sentences, text)
	})
	if err != nil {
		t.Fatalf("Expected stream dispatch to succeed, got error: %v", err)
	}

	if fullText != "Hello. How are you today?" {
		t.Errorf("Expected full text to accumulate, got %q", fullText)
	}
	if len(sentences) != 2 || sentences[0] != "Hello." || sentences[1] != "How are you today?" {
		t.Errorf("Expected sentences [Hello. | How are you today?], got %v", sentences)
	}
}

func TestDispatchStreamSurfacesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	dispatcher := newResponseDispatcher(reply.NewClient(server.URL, ""), false)

	_, err := dispatcher.DispatchStream(context.Background(), reply.Request{Message: "Hi"}, func(string) {
		t.Error("Expected no sentences from a failed stream")
	})
	if !errors.Is(err, reply.ErrNetworkUnreachable) {
		t.Fatalf("Expected ErrNetworkUnreachable, got %v", err)
	}
}

func TestDispatchWholeResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": "All at once."}`))
	}))
	defer server.Close()

	dispatcher := newResponseDispatcher(reply.NewClient(server.URL, ""), false)

	response, err := dispatcher.Dispatch(context.Background(), reply.Request{Message: "Hi"})
	if err != nil {
		t.Fatalf("Expected dispatch to succeed, got error: %v", err)
	}
	if response.Text() != "All at once." {
		t.Errorf("Expected reply text %q, got %q", "All at once.", response.Text())
	}
}
