// Package explorer fetches token transfers from an Etherscan v2 compatible
// block explorer API (account/tokentx).
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.etherscan.io/v2/api"
	DefaultChainID     = 56
	DefaultPageSize    = 10000
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

const sourceName = "explorer"

// ErrRateLimited is returned when the explorer keeps rejecting calls for
// exceeding its rate limit after all retries.
var ErrRateLimited = errors.New("explorer rate limit reached")

// APIError is a non-retryable error reported in the response body.
type APIError struct {
	Status  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer error (status %s): %s: %s", e.Status, e.Message, e.Result)
}

// Client implements ingestion.TransferSource over HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	chainID     int64
	pageSize    int
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithChainID sets the chain queried through the v2 API.
func WithChainID(id int64) ClientOption {
	return func(c *Client) {
		c.chainID = id
	}
}

// WithPageSize sets the number of records requested per call.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new explorer client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		chainID:     DefaultChainID,
		pageSize:    DefaultPageSize,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenTxResponse is the tokentx envelope. Result is an array on success
// and a string on error.
type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// FetchTransfers returns token transfers of contract from startBlock to the
// latest block in ascending order.
//
// When a full page comes back, transfers of the last block on the page are
// dropped so the next call starting after the returned maximum cannot skip
// the remainder of that block.
func (c *Client) FetchTransfers(ctx context.Context, contract string, startBlock uint64) ([]*domain.RawTransfer, error) {
	params := url.Values{}
	params.Set("chainid", strconv.FormatInt(c.chainID, 10))
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", contract)
	params.Set("startblock", strconv.FormatUint(startBlock, 10))
	params.Set("endblock", "latest")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(c.pageSize))
	params.Set("sort", "asc")
	params.Set("apikey", c.apiKey)

	started := time.Now()
	records, err := c.get(ctx, params)
	observability.RecordUpstreamCall(sourceName, "tokentx", time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}

	transfers := make([]*domain.RawTransfer, 0, len(records))
	for _, r := range records {
		t, ok := r.toRawTransfer()
		if !ok {
			observability.RecordUpstreamError(sourceName, "malformed_record")
			continue
		}
		transfers = append(transfers, t)
	}

	if c.pageSize > 0 && len(records) >= c.pageSize {
		transfers = trimLastBlock(transfers)
	}
	return transfers, nil
}

// get performs the request with retries and exponential backoff.
func (c *Client) get(ctx context.Context, params url.Values) ([]tokenTx, error) {
	endpoint := c.baseURL + "?" + params.Encode()
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			observability.RecordUpstreamError(sourceName, "transport")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w (429)", ErrRateLimited)
			observability.RecordUpstreamError(sourceName, "rate_limited")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			observability.RecordUpstreamError(sourceName, "http_status")
			continue
		}

		var envelope tokenTxResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if envelope.Status == "1" {
			var records []tokenTx
			if err := json.Unmarshal(envelope.Result, &records); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
			return records, nil
		}

		var detail string
		_ = json.Unmarshal(envelope.Result, &detail)

		if strings.Contains(envelope.Message, "No transactions found") {
			return nil, nil
		}
		if isRateLimit(envelope.Message) || isRateLimit(detail) {
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, detail)
			observability.RecordUpstreamError(sourceName, "rate_limited")
			continue
		}

		// API errors are not retried
		observability.RecordUpstreamError(sourceName, "api")
		return nil, &APIError{Status: envelope.Status, Message: envelope.Message, Result: detail}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRateLimit(s string) bool {
	return strings.Contains(strings.ToLower(s), "rate limit")
}

func (r tokenTx) toRawTransfer() (*domain.RawTransfer, bool) {
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return nil, false
	}
	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return nil, false
	}
	return &domain.RawTransfer{
		Hash:            r.Hash,
		BlockNumber:     block,
		Timestamp:       ts,
		From:            r.From,
		To:              r.To,
		ContractAddress: r.ContractAddress,
		Value:           r.Value,
		TokenDecimal:    r.TokenDecimal,
	}, true
}

// trimLastBlock drops the transfers of the highest block unless that would
// drop everything.
func trimLastBlock(transfers []*domain.RawTransfer) []*domain.RawTransfer {
	if len(transfers) == 0 {
		return transfers
	}
	var last uint64
	for _, t := range transfers {
		if t.BlockNumber > last {
			last = t.BlockNumber
		}
	}
	kept := transfers[:0]
	for _, t := range transfers {
		if t.BlockNumber != last {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return transfers
	}
	return kept
}
