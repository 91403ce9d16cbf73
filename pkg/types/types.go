// Package types defines the shared vocabulary used across every layer of the
// copy-trading engine: fill events, tiers, order book snapshots, and the
// on-chain order shape the signer produces. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a fill or order: Buy or Sell.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderDiscipline selects how an order behaves once posted.
type OrderDiscipline string

const (
	// Immediate is a taker-only fill-and-kill order: matches what it can,
	// cancels the remainder.
	Immediate OrderDiscipline = "IMMEDIATE"
	// Deadline is a resting good-till-date order, valid until Deadline.
	Deadline OrderDiscipline = "DEADLINE"
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// TriState models an optional boolean the system may not have an opinion on
// yet — used for the fill event's is_live flag, which is resolved by a
// best-effort market-metadata lookup before execution.
type TriState int

const (
	Unknown TriState = iota
	True
	False
)

// Bool reports whether the tri-state should be treated as true. Unknown
// degrades to false per the transport error-handling policy.
func (t TriState) Bool() bool {
	return t == True
}

// ————————————————————————————————————————————————————————————————————————
// Fill event (decoder output, order engine input)
// ————————————————————————————————————————————————————————————————————————

// FillEvent is the typed result of decoding one ORDERS_FILLED log emitted by
// the whale address. Shares, USDValue and Price are decimal.Decimal so that
// shares * price reconstructs usd_value exactly, not within floating-point
// slop.
type FillEvent struct {
	BlockNumber uint64
	TxHash      string
	Side        Side
	TokenID     string // interned decimal string of the non-zero asset id
	Shares      decimal.Decimal
	USDValue    decimal.Decimal
	Price       decimal.Decimal
	IsLive      TriState
}

// ————————————————————————————————————————————————————————————————————————
// Position sizing
// ————————————————————————————————————————————————————————————————————————

// Tier is one row of the static sizing table, ordered by descending
// MinShares. The first tier whose MinShares <= whale shares applies.
type Tier struct {
	MinShares      decimal.Decimal
	PriceBuffer    decimal.Decimal
	Discipline     OrderDiscipline
	SizeMultiplier decimal.Decimal
}

// SizeResult is the sizer's deterministic output for one fill event.
type SizeResult struct {
	LocalSize  decimal.Decimal
	LocalPrice decimal.Decimal
	Discipline OrderDiscipline
	Deadline   time.Time // zero unless Discipline == Deadline
}

// ————————————————————————————————————————————————————————————————————————
// Risk guard
// ————————————————————————————————————————————————————————————————————————

// RiskVerdict is the decision kind the guard returns for a fill.
type RiskVerdict int

const (
	Allow RiskVerdict = iota
	FetchDepth
	Block
)

// RiskDecision carries the verdict and, for Block, a short machine-readable
// reason that becomes part of the worker's reply string and audit row.
type RiskDecision struct {
	Verdict RiskVerdict
	Reason  string // "TRIPPED", "LOW_LIQUIDITY", "TRIP"; empty otherwise
}

// ————————————————————————————————————————————————————————————————————————
// Resubmit chain
// ————————————————————————————————————————————————————————————————————————

// ResubmitRequest is produced by the order engine on a partial or zero fill
// and consumed by the resubmitter. It carries everything needed to compute
// the next candidate price and to preserve the fill-conservation invariant
// across attempts.
type ResubmitRequest struct {
	ChainID          string // uuid, shared by every attempt and audit row in this chain
	TokenID          string
	Side             Side
	OriginalSize     decimal.Decimal
	RemainingSize    decimal.Decimal
	CumulativeFilled decimal.Decimal
	WhalePrice       decimal.Decimal
	FailedPrice      decimal.Decimal
	MaxPrice         decimal.Decimal // ceiling (buy) / floor (sell), fixed at chain construction
	WhaleShares      decimal.Decimal // for tier/max_attempts lookup
	Attempt          int             // 1-based
	IsLive           TriState
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is a point-in-time snapshot of one token's order book, top 10 levels
// each side, as returned by the CLOB collaborator's FetchBook.
type Book struct {
	TokenID   string
	Bids      []PriceLevel // descending by price (best bid first)
	Asks      []PriceLevel // ascending by price (best ask first)
	Timestamp time.Time
}

// TopOfBook returns the best bid/ask price and size, or ok=false if either
// side is empty.
func (b Book) TopOfBook() (bidPrice, bidSize, askPrice, askSize decimal.Decimal, ok bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}
	return b.Bids[0].Price, b.Bids[0].Size, b.Asks[0].Price, b.Asks[0].Size, true
}

// DepthUSD sums price*size across the top 10 levels on the given side, in
// USD — the figure the risk guard's FetchDepth escalation compares against
// its configured minimum.
func (b Book) DepthUSD(side Side) decimal.Decimal {
	levels := b.Asks
	if side == Sell {
		levels = b.Bids
	}
	total := decimal.Zero
	for i, lvl := range levels {
		if i >= 10 {
			break
		}
		total = total.Add(lvl.Price.Mul(lvl.Size))
	}
	return total
}

// ————————————————————————————————————————————————————————————————————————
// On-chain order shape (CLOB collaborator)
// ————————————————————————————————————————————————————————————————————————

// SignedOrder is the on-chain order format the CLOB API expects.
// MakerAmount and TakerAmount are in 6-decimal USDC units (1e6 = $1).
//
// For BUY:  maker gives MakerAmount USDC, receives TakerAmount tokens.
// For SELL: maker gives MakerAmount tokens, receives TakerAmount USDC.
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"`
	TokenID       string        `json:"tokenId"`
	MakerAmount   *big.Int      `json:"makerAmount"`
	TakerAmount   *big.Int      `json:"takerAmount"`
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	SignatureType SignatureType `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// OrderPayload is the REST request body for POST /order.
type OrderPayload struct {
	Order      SignedOrder     `json:"order"`
	Owner      string          `json:"owner"`
	Discipline OrderDiscipline `json:"-"`
}

// OrderResult is the CLOB client's response to SignAndPost, already parsed
// into the success/filled-size/error-code shape the order engine consumes.
type OrderResult struct {
	Success    bool
	FilledSize decimal.Decimal
	ErrorCode  string
	RawBody    string
}
