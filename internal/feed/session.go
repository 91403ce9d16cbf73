// Package feed implements the WebSocket session: a single unauthenticated
// JSON-RPC "eth_subscribe" subscription to the chain node, filtered to the
// monitored CLOB contracts' OrderFilled logs. It auto-reconnects with
// exponential backoff and an idle-timeout watchdog, and hands decoded fills
// to the order engine without blocking on slow consumers: a fill that finds
// the event buffer full is dropped.
//
// There is no per-asset subscribe/unsubscribe tracking: the whale address
// is fixed for the life of the process, so one subscription suffices.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"whalecopy/internal/decode"
	"whalecopy/pkg/types"
)

const (
	idleTimeout      = 300 * time.Second // reconnect if the socket goes silent this long
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// Session maintains the single log subscription used to observe the
// monitored whale's fills.
type Session struct {
	url     string
	decoder *decode.Decoder
	events  chan types.FillEvent
	logger  *slog.Logger
}

// New creates a feed session against the given WebSocket node URL, decoding
// every received frame with decoder.
func New(wssURL string, decoder *decode.Decoder, logger *slog.Logger) *Session {
	return &Session{
		url:     wssURL,
		decoder: decoder,
		events:  make(chan types.FillEvent, eventBufferSize),
		logger:  logger.With("component", "feed"),
	}
}

// Events returns the channel of decoded fill events. The order engine
// consumes from this channel.
func (s *Session) Events() <-chan types.FillEvent { return s.events }

// Run connects and maintains the subscription with auto-reconnect. It
// blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// subscribeFilter's Topics is a position-matched topic list, not a flat
// set: position 0 must match the OrderFilled signature, position 1 is
// unconstrained (null), and position 2 must match the whale's padded
// address. The decoder re-checks topics[2] independently; the server-side
// filter is never trusted on its own.
type subscribeFilter struct {
	Address []string      `json:"address"`
	Topics  []interface{} `json:"topics"`
}

func (s *Session) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params: []interface{}{
			"logs",
			subscribeFilter{
				Address: decode.CLOBContractAddresses(),
				Topics:  []interface{}{[]string{decode.OrdersFilledSig()}, nil, s.decoder.WhaleTopic()},
			},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatch(msg)
	}
}

func (s *Session) dispatch(frame []byte) {
	// Drop the subscription ack; it carries no "method" field the decoder
	// would recognize.
	var probe struct {
		Result json.RawMessage `json:"result"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(frame, &probe); err == nil && probe.Method == "" {
		return
	}

	evt, ok := s.decoder.Decode(frame)
	if !ok {
		return
	}

	select {
	case s.events <- evt:
	default:
		s.logger.Warn("event channel full, dropping fill", "token_id", evt.TokenID, "tx_hash", evt.TxHash)
	}
}
