package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/httpclient"
)

// Completer is the external text-completion service: one system+user prompt
// pair in, free-form text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type HTTPCompleter struct {
	client   *httpclient.Client
	endpoint string
	apiKey   string
	model    string
}

func NewHTTPCompleter(endpoint, apiKey, model string, timeout, retryMaxElapsed time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		client: httpclient.NewClient(httpclient.ClientConfig{
			Timeout:         timeout,
			RetryMaxElapsed: retryMaxElapsed,
			MaxIdleConns:    4,
			IdleConnTimeout: 90 * time.Second,
		}),
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
	}
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []completionMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	resp, err := c.client.DoWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion status %d", resp.StatusCode)
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("completion decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

// BreakerCompleter shields the sidecar from a flapping completion endpoint.
// Open-circuit calls fail fast and degrade to empty/neutral results upstream.
type BreakerCompleter struct {
	inner Completer
	cb    *gobreaker.CircuitBreaker
}

func WithBreaker(inner Completer) *BreakerCompleter {
	return &BreakerCompleter{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "completion",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *BreakerCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Complete(ctx, system, user)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
