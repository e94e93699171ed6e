// Package jupiter prices token conversions through the Jupiter quote API.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.jup.ag/swap/v1"

// Client is a read-only quote client. Requests are paced so a burst of
// deposits cannot trip the public API's limit.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	limiter *rate.Limiter
}

func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if b := strings.TrimSpace(string(e.Body)); b != "" {
		return fmt.Sprintf("jupiter: status %d: %s", e.StatusCode, b)
	}
	return fmt.Sprintf("jupiter: status %d", e.StatusCode)
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	switch {
	case strings.TrimSpace(req.InputMint) == "":
		return nil, fmt.Errorf("jupiter: input mint is required")
	case strings.TrimSpace(req.OutputMint) == "":
		return nil, fmt.Errorf("jupiter: output mint is required")
	case req.Amount == 0:
		return nil, fmt.Errorf("jupiter: amount must be positive")
	}

	q := url.Values{
		"inputMint":  {req.InputMint},
		"outputMint": {req.OutputMint},
		"amount":     {strconv.FormatUint(req.Amount, 10)},
		"swapMode":   {"ExactIn"},
	}
	if req.SlippageBps != nil {
		q.Set("slippageBps", strconv.FormatUint(uint64(*req.SlippageBps), 10))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	var out QuoteResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode jupiter quote: %w", err)
	}
	return &out, nil
}

// ConvertExactIn returns how many base units of outputMint amount of
// inputMint is worth at the current best route.
func (c *Client) ConvertExactIn(ctx context.Context, inputMint, outputMint string, amount uint64) (uint64, error) {
	res, err := c.Quote(ctx, QuoteRequest{InputMint: inputMint, OutputMint: outputMint, Amount: amount})
	if err != nil {
		return 0, err
	}
	out, err := strconv.ParseUint(res.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: bad outAmount %q: %w", res.OutAmount, err)
	}
	return out, nil
}
