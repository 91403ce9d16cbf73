package exchange

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"whalecopy/internal/config"
	"whalecopy/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mockClient(t *testing.T) *Client {
	t.Helper()
	auth, err := NewAuth(config.WalletConfig{
		PrivateKey: "0x1111111111111111111111111111111111111111111111111111111111111111",
		ChainID:    137,
	})
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return &Client{
		http:   nil,
		auth:   auth,
		rl:     NewRateLimiter(),
		mock:   true,
		logger: testLogger(),
	}
}

func TestSignAndPostMockFillsCompletely(t *testing.T) {
	t.Parallel()
	c := mockClient(t)

	result, err := c.SignAndPost(context.Background(), "tok1", types.Buy, dec("0.50"), dec("10"), types.Immediate, 0)
	if err != nil {
		t.Fatalf("SignAndPost: %v", err)
	}
	if !result.Success {
		t.Error("expected mock fill to succeed")
	}
	if !result.FilledSize.Equal(dec("10")) {
		t.Errorf("filled size = %v, want 10", result.FilledSize)
	}
}

func TestBuildOrderPayloadSetsRoutingFields(t *testing.T) {
	t.Parallel()
	c := mockClient(t)

	payload, err := c.buildOrderPayload("12345678901234567890", types.Buy, dec("0.55"), dec("10"), types.Deadline, 1700000000)
	if err != nil {
		t.Fatalf("buildOrderPayload: %v", err)
	}

	if payload.Order.TokenID != "12345678901234567890" {
		t.Errorf("token id = %q", payload.Order.TokenID)
	}
	if payload.Order.Taker != "0x0000000000000000000000000000000000000000" {
		t.Errorf("taker = %q, want zero address", payload.Order.Taker)
	}
	if payload.Order.Nonce != "0" {
		t.Errorf("nonce = %q, want 0", payload.Order.Nonce)
	}
	if payload.Order.Maker != c.auth.FunderAddress().Hex() {
		t.Errorf("maker = %q, want funder address", payload.Order.Maker)
	}
	if payload.Order.Signature == "" || !strings.HasPrefix(payload.Order.Signature, "0x") {
		t.Errorf("signature = %q, want non-empty 0x-prefixed signature", payload.Order.Signature)
	}
	if payload.Order.Salt == "" || payload.Order.Salt == "0" {
		t.Errorf("salt = %q, want non-zero", payload.Order.Salt)
	}
}

func TestBuildOrderPayloadRejectsInvalidTokenID(t *testing.T) {
	t.Parallel()
	c := mockClient(t)

	_, err := c.buildOrderPayload("not-a-number", types.Buy, dec("0.55"), dec("10"), types.Immediate, 0)
	if err == nil {
		t.Fatal("expected an error for a non-numeric token id")
	}
}

func TestToPriceLevelParsesDecimals(t *testing.T) {
	t.Parallel()
	lvl := toPriceLevel(bookLevel{Price: "0.42", Size: "100.5"})
	if !lvl.Price.Equal(decimal.NewFromFloat(0.42)) {
		t.Errorf("price = %v, want 0.42", lvl.Price)
	}
	if !lvl.Size.Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("size = %v, want 100.5", lvl.Size)
	}
}
