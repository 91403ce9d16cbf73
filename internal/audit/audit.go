// Package audit implements the append-only CSV audit log: one row per
// handled fill event with its decision, fill, and a post-submit book-top
// snapshot.
//
// Writes happen off the caller's goroutine: Log enqueues a row on a
// buffered channel and a single background writer goroutine drains it with
// encoding/csv, so a slow disk never stalls the order worker.
package audit

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"whalecopy/pkg/types"
)

var header = []string{
	"timestamp", "block_number", "token_id", "usd_value", "shares", "price",
	"side", "status", "top_bid_price", "top_bid_size", "top_ask_price",
	"top_ask_size", "tx_hash", "is_live", "chain_id",
}

// Row is one audit record, assembled by the order engine and resubmitter
// after every decision.
type Row struct {
	Timestamp   time.Time
	BlockNumber uint64
	TokenID     string
	USDValue    string
	Shares      string
	Price       string
	Side        types.Side
	Status      string
	TopBidPrice string
	TopBidSize  string
	TopAskPrice string
	TopAskSize  string
	TxHash      string
	IsLive      types.TriState
	ChainID     string // empty unless the row was produced by a resubmit attempt
}

const rowBufferSize = 512

// Log is the append-only CSV sink. Construct one per process with Open; it
// owns the file handle and the background writer goroutine.
type Log struct {
	rows   chan Row
	done   chan struct{}
	logger *slog.Logger
}

// Open creates (or appends to) the CSV file at path and starts the
// background writer goroutine. Callers must call Close on shutdown to
// drain any buffered rows before the process exits.
func Open(path string, logger *slog.Logger) (*Log, error) {
	needsHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needsHeader = false
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit csv: %w", err)
	}

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		w.Flush()
	}

	l := &Log{
		rows:   make(chan Row, rowBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "audit"),
	}

	go l.run(f, w)

	return l, nil
}

func (l *Log) run(f *os.File, w *csv.Writer) {
	defer close(l.done)
	defer f.Close()
	defer w.Flush()

	for row := range l.rows {
		if err := w.Write(row.csvRecord()); err != nil {
			l.logger.Error("write audit row", "error", err)
			continue
		}
		w.Flush()
	}
}

// Log enqueues a row for background writing. It never blocks the caller
// indefinitely on disk I/O; if the buffer is full the row is dropped and
// logged, since audit logging must never backpressure the order worker.
func (l *Log) Log(row Row) {
	select {
	case l.rows <- row:
	default:
		l.logger.Warn("audit buffer full, dropping row", "token_id", row.TokenID, "status", row.Status)
	}
}

// Close stops accepting new rows and waits for the background writer to
// drain the buffer and flush the file.
func (l *Log) Close() {
	close(l.rows)
	<-l.done
}

func (r Row) csvRecord() []string {
	isLive := "unknown"
	switch r.IsLive {
	case types.True:
		isLive = "true"
	case types.False:
		isLive = "false"
	}
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatUint(r.BlockNumber, 10),
		r.TokenID,
		r.USDValue,
		r.Shares,
		r.Price,
		string(r.Side),
		r.Status,
		r.TopBidPrice,
		r.TopBidSize,
		r.TopAskPrice,
		r.TopAskSize,
		r.TxHash,
		isLive,
		r.ChainID,
	}
}
