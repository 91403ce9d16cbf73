// Package exchange implements the CLOB REST client and the EIP-712/HMAC
// signer used to submit signed orders for the copy-trading engine.
//
// The REST client talks to the CLOB API for the four operations this
// engine needs:
//   - FetchBook:       GET  /book               — L2 order book for a token
//   - FetchMarketIsLive: GET /markets/{token}   — market status, for is_live
//   - SignAndPost:     POST /order              — submit one signed order
//   - DeriveAPIKey:    GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Book, market-status and order requests are rate-limited via per-category
// TokenBuckets; every request is automatically retried on transport and 5xx
// errors. Order posts carry L2 HMAC headers, the derive-api-key call carries
// L1 headers, and book and market-status reads are unauthenticated. There
// is no cancellation path: this engine never
// cancels an order it has placed — a failed or partially filled order is
// instead handed to the resubmitter.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"whalecopy/internal/config"
	"whalecopy/pkg/types"
)

// Client is the CLOB REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	mock   bool // when true, SignAndPost returns a synthetic fill without any HTTP call
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.FeedConfig, mockTrading bool, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		mock:   mockTrading,
		logger: logger,
	}
}

// bookLevel is the wire shape of a single price/size pair in a book response.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// FetchBook fetches the order book for a single token and converts it into
// the engine's internal decimal representation.
func (c *Client) FetchBook(ctx context.Context, tokenID string) (types.Book, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.Book{}, err
	}

	var raw bookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&raw).
		Get("/book")
	if err != nil {
		return types.Book{}, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Book{}, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}

	book := types.Book{TokenID: tokenID, Timestamp: time.Now()}
	for _, lvl := range raw.Bids {
		book.Bids = append(book.Bids, toPriceLevel(lvl))
	}
	for _, lvl := range raw.Asks {
		book.Asks = append(book.Asks, toPriceLevel(lvl))
	}
	return book, nil
}

func toPriceLevel(lvl bookLevel) types.PriceLevel {
	price, _ := decimal.NewFromString(lvl.Price)
	size, _ := decimal.NewFromString(lvl.Size)
	return types.PriceLevel{Price: price, Size: size}
}

type marketStatusResponse struct {
	Active bool `json:"active"`
	Closed bool `json:"closed"`
}

// FetchMarketIsLive performs the raw is-live lookup for a token. Callers
// should go through internal/marketcache rather than calling this directly,
// so repeated lookups within the TTL window don't re-hit the network.
func (c *Client) FetchMarketIsLive(ctx context.Context, tokenID string) (bool, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return false, err
	}

	var raw marketStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/markets/" + tokenID)
	if err != nil {
		return false, fmt.Errorf("get market status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("get market status: status %d: %s", resp.StatusCode(), resp.String())
	}
	return raw.Active && !raw.Closed, nil
}

// buildOrderPayload converts maker/taker amounts and routing fields into the
// on-chain SignedOrder + metadata the REST API expects, then EIP-712-signs
// it. The maker is the funder wallet (proxy-aware), the signer is the EOA,
// and the taker is the zero address — this engine only ever places open,
// anyone-can-fill orders.
func (c *Client) buildOrderPayload(tokenID string, side types.Side, price, size decimal.Decimal, discipline types.OrderDiscipline, expirationUnix int64) (types.OrderPayload, error) {
	makerAmt, takerAmt := PriceToAmounts(price, size, side)

	payload := types.OrderPayload{
		Order: types.SignedOrder{
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       tokenID,
			MakerAmount:   makerAmt,
			TakerAmount:   takerAmt,
			Side:          side,
			Expiration:    fmt.Sprintf("%d", expirationUnix),
			Nonce:         "0",
			FeeRateBps:    "0",
			SignatureType: c.auth.SignatureType(),
		},
		Owner:      c.auth.Credentials().ApiKey,
		Discipline: discipline,
	}
	if err := c.auth.SignOrder(&payload.Order); err != nil {
		return types.OrderPayload{}, fmt.Errorf("sign order: %w", err)
	}
	return payload, nil
}

// SignAndPost signs and submits a single order: builds the maker/taker
// amounts at full precision, signs with the EOA key, and posts to the
// venue. Under mock trading it fabricates a full fill without making any
// network call, so a dry run still exercises the sizer/engine/audit
// pipeline end to end.
func (c *Client) SignAndPost(ctx context.Context, tokenID string, side types.Side, price, size decimal.Decimal, discipline types.OrderDiscipline, expirationUnix int64) (types.OrderResult, error) {
	if c.mock {
		c.logger.Info("mock trading: synthesizing fill", "token_id", tokenID, "side", side, "price", price, "size", size)
		return types.OrderResult{Success: true, FilledSize: size}, nil
	}

	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderResult{}, err
	}

	payload, err := c.buildOrderPayload(tokenID, side, price, size, discipline, expirationUnix)
	if err != nil {
		return types.OrderResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("post order: %w", err)
	}
	result.RawBody = resp.String()
	if resp.StatusCode() != http.StatusOK {
		result.Success = false
		if result.ErrorCode == "" {
			result.ErrorCode = fmt.Sprintf("http_%d", resp.StatusCode())
		}
		return result, nil
	}

	return result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
