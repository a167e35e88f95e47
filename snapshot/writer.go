// Package snapshot periodically projects the order book to disk as
// book_state.json, publishing it via a temp-file-then-rename so a
// concurrent reader never observes a torn write.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"limitbook/orderbook"
)

// Level mirrors one row of book_state.json's bid/ask arrays.
type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Document is the full book_state.json payload.
type Document struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Writer publishes OrderBookLevelInfos to a fixed path.
type Writer struct {
	path string
	log  *zap.Logger
}

// New constructs a Writer publishing to path. logger defaults to a
// no-op logger if nil.
func New(path string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{path: path, log: logger}
}

// Write serializes infos and atomically publishes it to the Writer's
// path. Errors are logged and returned; the caller decides whether a
// failed snapshot is fatal (spec.md treats it as best-effort, not
// matching-path critical).
func (w *Writer) Write(infos orderbook.OrderBookLevelInfos) error {
	doc := Document{
		Bids: toLevels(infos.Bids),
		Asks: toLevels(infos.Asks),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		w.log.Error("snapshot: marshal failed", zap.Error(err))
		return err
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		w.log.Error("snapshot: write temp file failed", zap.String("path", tmp), zap.Error(err))
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		w.log.Error("snapshot: rename failed", zap.String("from", tmp), zap.String("to", w.path), zap.Error(err))
		return err
	}
	return nil
}

func toLevels(src []orderbook.LevelInfo) []Level {
	levels := make([]Level, len(src))
	for i, l := range src {
		levels[i] = Level{Price: l.Price, Quantity: l.Quantity}
	}
	return levels
}

// DefaultPath joins dir with the conventional snapshot file name.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "book_state.json")
}
