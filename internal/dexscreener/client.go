package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/liamashdown/whalewatch/internal/ratelimit"
	"github.com/samber/lo"
)

// MaxTokensPerRequest is the batch limit of the tokens endpoint.
const MaxTokensPerRequest = 30

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client handles communication with the DexScreener API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a new DexScreener client. rps bounds outbound requests.
func NewClient(baseURL string, rps float64) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(rps),
	}
}

// TokenPairs fetches every pair for the given token addresses. Addresses
// are de-duplicated and sent comma-joined, MaxTokensPerRequest per request.
func (c *Client) TokenPairs(ctx context.Context, addresses []string) ([]Pair, error) {
	addresses = lo.Uniq(lo.Compact(addresses))
	if len(addresses) == 0 {
		return nil, nil
	}

	var pairs []Pair
	for _, batch := range lo.Chunk(addresses, MaxTokensPerRequest) {
		resp, err := c.fetchTokens(ctx, batch)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, resp.Pairs...)
	}
	return pairs, nil
}

func (c *Client) fetchTokens(ctx context.Context, batch []string) (resp *TokensResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest("dexscreener", "/latest/dex/tokens", time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	escaped := lo.Map(batch, func(a string, _ int) string { return url.PathEscape(a) })
	u := c.baseURL + "/latest/dex/tokens/" + strings.Join(escaped, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var out TokensResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &out, nil
}
