// Package decode implements the Event Decoder: it turns a single JSON-RPC
// "eth_subscribe" log notification into a typed types.FillEvent, or drops it
// silently if it doesn't pass the topic filter or the payload is malformed.
//
// The offsets and topic signature below are venue-specific compile-time
// constants for the CTF Exchange deployments on Polygon. A deployment
// against a different venue must re-derive them.
package decode

// ordersFilledSig is the keccak256 topic hash for the CTF Exchange's
// OrderFilled event:
// keccak256("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)").
const ordersFilledSig = "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6"

// Offsets, in hex characters into the data string counted from the start
// of its "0x" prefix, of the four 32-byte big-endian words packed into the
// log's data field. The decoder strips the prefix and subtracts 2.
const (
	dataMinHexLen = 258 // "0x" + 4*64 hex digits

	makerAssetIDOffset = 2
	takerAssetIDOffset = 66
	makerAmountOffset  = 130
	takerAmountOffset  = 194
	wordHexLen         = 64
)

// clobContractAddresses is the set of CTF Exchange contracts the upstream
// subscription filters on (address field of the eth_subscribe params). It is
// exposed so the WebSocket session (internal/feed) can build the
// subscription request without this package leaking its internals elsewhere.
var clobContractAddresses = []string{
	"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
	"0xc5d563a36ae78145c45a50134d48a1215220f80a",
}

// OrdersFilledSig returns the compile-time ORDERS_FILLED topic signature.
func OrdersFilledSig() string { return ordersFilledSig }

// CLOBContractAddresses returns the monitored CTF Exchange contract
// addresses for the subscription's "address" filter.
func CLOBContractAddresses() []string {
	out := make([]string, len(clobContractAddresses))
	copy(out, clobContractAddresses)
	return out
}
