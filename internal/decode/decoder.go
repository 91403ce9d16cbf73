package decode

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"whalecopy/pkg/types"
)

// notification mirrors the JSON-RPC "eth_subscription" envelope delivered
// over the WebSocket session: {"method":"eth_subscription","params":{"result":{...}}}.
type notification struct {
	Method string `json:"method"`
	Params struct {
		Result logResult `json:"result"`
	} `json:"params"`
}

type logResult struct {
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
}

// Decoder parses JSON-RPC log notifications into types.FillEvent, filtering
// on the whale topic and decoding the packed fill payload. It holds the
// process-wide token-id interning table.
type Decoder struct {
	whaleTopic string // 32-byte-left-padded, lowercase hex, with 0x prefix
	in         *interner
}

// New creates a decoder that only emits events whose topics[2] matches the
// given whale address (any case, with or without 0x prefix).
func New(whaleAddress string) *Decoder {
	return &Decoder{
		whaleTopic: padTopic(whaleAddress),
		in:         newInterner(),
	}
}

// WhaleTopic returns the padded topic this decoder filters on, for the
// feed session to include in its subscription request's topics[2] slot.
func (d *Decoder) WhaleTopic() string { return d.whaleTopic }

// padTopic left-pads a 20-byte address to a 32-byte topic and lowercases it,
// matching how the chain encodes an indexed address argument.
func padTopic(addr string) string {
	a := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	if len(a) < 64 {
		a = strings.Repeat("0", 64-len(a)) + a
	}
	return "0x" + a
}

// Decode parses a single WebSocket frame. It returns ok=false for any parse
// defect, filter miss, or unsupported side combination — the decoder is
// infallible from the caller's perspective; malformed frames are dropped,
// never retried.
func (d *Decoder) Decode(frame []byte) (types.FillEvent, bool) {
	var n notification
	if err := json.Unmarshal(frame, &n); err != nil {
		return types.FillEvent{}, false
	}
	if n.Method != "" && n.Method != "eth_subscription" {
		return types.FillEvent{}, false
	}

	result := n.Params.Result
	if !d.passesFilter(result.Topics) {
		return types.FillEvent{}, false
	}

	return d.decodePayload(result)
}

func (d *Decoder) passesFilter(topics []string) bool {
	if len(topics) < 3 {
		return false
	}
	return strings.EqualFold(topics[2], d.whaleTopic)
}

func (d *Decoder) decodePayload(result logResult) (types.FillEvent, bool) {
	data := strings.TrimPrefix(result.Data, "0x")
	if len(data) < dataMinHexLen-2 {
		return types.FillEvent{}, false
	}

	makerAssetID, ok := wordAt(data, makerAssetIDOffset-2)
	if !ok {
		return types.FillEvent{}, false
	}
	takerAssetID, ok := wordAt(data, takerAssetIDOffset-2)
	if !ok {
		return types.FillEvent{}, false
	}
	makerAmount, ok := wordAt(data, makerAmountOffset-2)
	if !ok {
		return types.FillEvent{}, false
	}
	takerAmount, ok := wordAt(data, takerAmountOffset-2)
	if !ok {
		return types.FillEvent{}, false
	}

	makerIsZero := makerAssetID.Sign() == 0
	takerIsZero := takerAssetID.Sign() == 0

	var side types.Side
	var nonZeroAsset *big.Int
	var shareUnits, usdUnits *big.Int

	switch {
	case makerIsZero && !takerIsZero:
		side = types.Buy
		nonZeroAsset = takerAssetID
		shareUnits = takerAmount
		usdUnits = makerAmount
	case takerIsZero && !makerIsZero:
		side = types.Sell
		nonZeroAsset = makerAssetID
		shareUnits = makerAmount
		usdUnits = takerAmount
	default:
		return types.FillEvent{}, false
	}

	shares := decimal.NewFromBigInt(shareUnits, -6)
	if !shares.IsPositive() {
		return types.FillEvent{}, false
	}
	usd := decimal.NewFromBigInt(usdUnits, -6)
	price := usd.Div(shares)

	tokenID := d.in.intern(toRaw32(nonZeroAsset))

	return types.FillEvent{
		BlockNumber: parseHexUint(result.BlockNumber),
		TxHash:      result.TransactionHash,
		Side:        side,
		TokenID:     tokenID,
		Shares:      shares,
		USDValue:    usd,
		Price:       price,
		IsLive:      types.Unknown,
	}, true
}

// wordAt reads a 64-hex-digit big-endian word starting at the given
// zero-based character offset into data (data already has "0x" stripped).
func wordAt(data string, offset int) (*big.Int, bool) {
	if offset < 0 || offset+wordHexLen > len(data) {
		return nil, false
	}
	word := data[offset : offset+wordHexLen]
	n, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return nil, false
	}
	return n, true
}

// toRaw32 renders a big.Int as a left-zero-padded 32-byte array, the
// interning table's key.
func toRaw32(n *big.Int) [32]byte {
	var raw [32]byte
	b := n.Bytes()
	copy(raw[32-len(b):], b)
	return raw
}

func parseHexUint(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return n
}
