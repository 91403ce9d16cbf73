package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"whalecopy/internal/decode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatchDropsSubscriptionAck(t *testing.T) {
	t.Parallel()
	s := New("wss://example.com", decode.New("0x1111111111111111111111111111111111111111"), testLogger())

	s.dispatch([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`))

	select {
	case evt := <-s.Events():
		t.Errorf("expected no event from a subscription ack, got %+v", evt)
	default:
	}
}

func TestDispatchForwardsDecodedEvent(t *testing.T) {
	t.Parallel()
	whale := "0x1111111111111111111111111111111111111111"
	d := decode.New(whale)
	s := New("wss://example.com", d, testLogger())

	notification := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"topics":          []string{"0xsig", "0xmaker", d.WhaleTopic()},
				"data":            "0x" + word(0) + word(555) + word(450_000_000) + word(1_000_000_000),
				"blockNumber":     "0x10",
				"transactionHash": "0xabc",
			},
		},
	}
	raw, err := json.Marshal(notification)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	s.dispatch(raw)

	select {
	case evt := <-s.Events():
		if evt.TokenID == "" {
			t.Error("expected a non-empty token id on the forwarded event")
		}
	default:
		t.Error("expected a decoded event on the events channel")
	}
}

func word(n int64) string {
	return fmt.Sprintf("%064x", n)
}

func TestSubscribeFilterMarshalsPositionalTopics(t *testing.T) {
	t.Parallel()
	filter := subscribeFilter{
		Address: []string{"0xdead"},
		Topics:  []interface{}{[]string{"0xsig"}, nil, "0xwhale"},
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Topics []json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Topics) != 3 {
		t.Fatalf("topics length = %d, want 3", len(decoded.Topics))
	}
	if string(decoded.Topics[1]) != "null" {
		t.Errorf("topics[1] = %s, want null", decoded.Topics[1])
	}
	if string(decoded.Topics[2]) != `"0xwhale"` {
		t.Errorf("topics[2] = %s, want %q", decoded.Topics[2], `"0xwhale"`)
	}
}
