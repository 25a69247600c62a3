// Package reply talks to the conversational reply service. It supports a
// whole-JSON response mode and a server-sent-events streaming mode; the
// response dispatcher picks between them per turn.
package reply

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	converseEndpoint = "/api/converse"

	chunkPrefix = "data: "
	endMessage  = "[DONE]"
)

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(endpoint string, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
}

// Dispatch sends the request and waits for the complete reply. The deadline
// comes from the caller's context.
func (c *Client) Dispatch(ctx context.Context, request Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "dispatch reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.mode", request.Mode),
		attribute.Int("request.history_turns", len(request.ConversationHistory)),
	)

	request.Stream = false
	resp, err := c.send(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: non-OK HTTP status: %s", ErrNetworkUnreachable, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = c.transportError(ctx, fmt.Errorf("error reading response body: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var response Response
	if err := sonic.Unmarshal(body, &response); err != nil {
		err = fmt.Errorf("error unmarshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &response, nil
}

// DispatchStream sends the request in streaming mode. The reply arrives as
// text deltas through the returned stream's Chunks iterator.
func (c *Client) DispatchStream(request Request) *Stream {
	request.Stream = true
	return &Stream{client: c, request: request}
}

type Stream struct {
	client  *Client
	request Request
}

type streamFrame struct {
	Text string `json:"text"`
}

// Chunks iterates over the text deltas of the streamed reply. Iteration ends
// when the service sends its end-of-stream sentinel, an error is yielded, or
// the consumer stops early.
func (s *Stream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "dispatch reply stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.mode", s.request.Mode))

		resp, err := s.client.send(ctx, s.request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield("", err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			err := fmt.Errorf("%w: non-OK HTTP status: %s", ErrNetworkUnreachable, resp.Status)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield("", err)
			return
		}

		deltas := 0
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var frame streamFrame
			if err := sonic.Unmarshal([]byte(chunk), &frame); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				if !yield("", err) {
					return
				}
				continue
			}

			if frame.Text == "" {
				continue
			}

			deltas++
			if !yield(frame.Text, nil) {
				return
			}
		}
		span.SetAttributes(attribute.Int("response.deltas", deltas))

		if err := scanner.Err(); err != nil {
			err = s.client.transportError(ctx, fmt.Errorf("error reading stream: %w", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield("", err)
		}
	}
}

func (c *Client) send(ctx context.Context, request Request) (*http.Response, error) {
	requestBodyBytes, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+converseEndpoint, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	return resp, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
}
