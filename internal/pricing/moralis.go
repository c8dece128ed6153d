package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/observability"
)

// Default Moralis settings.
const (
	DefaultMoralisURL = "https://deep-index.moralis.io/api/v2.2"
	DefaultChain      = "bsc"
	DefaultTimeout    = 10 * time.Second
)

// ErrInvalidPrice is returned when the upstream answers without a positive price.
var ErrInvalidPrice = errors.New("upstream returned no valid price")

// MoralisClient fetches the token's USD price from the Moralis ERC-20 API.
type MoralisClient struct {
	baseURL string
	apiKey  string
	chain   string
	token   string
	client  *http.Client
}

// NewMoralisClient creates a client for the given token contract.
func NewMoralisClient(baseURL, apiKey, chain, token string) *MoralisClient {
	if baseURL == "" {
		baseURL = DefaultMoralisURL
	}
	if chain == "" {
		chain = DefaultChain
	}
	return &MoralisClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		chain:   chain,
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

type priceResponse struct {
	USDPrice json.Number `json:"usdPrice"`
}

// FetchPriceUSD implements Fetcher.
func (c *MoralisClient) FetchPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/erc20/%s/price?%s",
		c.baseURL, url.PathEscape(c.token), url.Values{"chain": {c.chain}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	observability.RecordUpstreamCall("moralis", "erc20_price", time.Since(started).Seconds())
	if err != nil {
		return decimal.Zero, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if pr.USDPrice == "" {
		return decimal.Zero, ErrInvalidPrice
	}
	price, err := decimal.NewFromString(pr.USDPrice.String())
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, pr.USDPrice)
	}
	return price, nil
}
