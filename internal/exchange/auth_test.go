package exchange

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"whalecopy/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceToAmounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		price   string
		size    string
		side    types.Side
		wantMkr int64
		wantTkr int64
	}{
		{
			name:    "BUY at 0.50, size 100",
			price:   "0.50",
			size:    "100",
			side:    types.Buy,
			wantMkr: 50_000_000,
			wantTkr: 100_000_000,
		},
		{
			name:    "SELL at 0.50, size 100",
			price:   "0.50",
			size:    "100",
			side:    types.Sell,
			wantMkr: 100_000_000,
			wantTkr: 50_000_000,
		},
		{
			name:    "BUY at 0.75, size 10",
			price:   "0.75",
			size:    "10",
			side:    types.Buy,
			wantMkr: 7_500_000,
			wantTkr: 10_000_000,
		},
		{
			name:    "BUY fractional size",
			price:   "0.55",
			size:    "1.99",
			side:    types.Buy,
			wantMkr: 1_094_500,
			wantTkr: 1_990_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mkr, tkr := PriceToAmounts(dec(tt.price), dec(tt.size), tt.side)

			if mkr.Cmp(big.NewInt(tt.wantMkr)) != 0 {
				t.Errorf("makerAmount = %s, want %d", mkr.String(), tt.wantMkr)
			}
			if tkr.Cmp(big.NewInt(tt.wantTkr)) != 0 {
				t.Errorf("takerAmount = %s, want %d", tkr.String(), tt.wantTkr)
			}
		})
	}
}

func TestPriceToAmountsSellMirrorsBuy(t *testing.T) {
	t.Parallel()

	buyMkr, buyTkr := PriceToAmounts(dec("0.60"), dec("50"), types.Buy)
	sellMkr, sellTkr := PriceToAmounts(dec("0.60"), dec("50"), types.Sell)

	if buyMkr.Cmp(sellTkr) != 0 {
		t.Errorf("BUY maker (%s) != SELL taker (%s)", buyMkr, sellTkr)
	}
	if buyTkr.Cmp(sellMkr) != 0 {
		t.Errorf("BUY taker (%s) != SELL maker (%s)", buyTkr, sellMkr)
	}
}
