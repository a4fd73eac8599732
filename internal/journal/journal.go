// Package journal persists every broadcast event as zstd-compressed
// JSONL, one file per hour. The journal is an audit trail, not a source
// of truth; write failures are logged and dropped.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/world"
)

// Writer appends JSON values to hour-rotated .jsonl.zst files in dir.
type Writer struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	// A bus handler can still fire during shutdown; clearing the hour
	// makes a late Write reopen the file instead of hitting a nil writer.
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("events-%s.jsonl.zst", hour))
}

type record struct {
	At   time.Time `json:"at"`
	Type string    `json:"type"`
	Data any       `json:"data"`
}

// Attach subscribes the writer to every broadcast event type.
func Attach(bus *event.Bus, w *Writer, log *zap.Logger) {
	subscribe[world.FlagPlaced](bus, w, log)
	subscribe[world.FlagRemoved](bus, w, log)
	subscribe[world.FlagHardened](bus, w, log)
	subscribe[world.FlagAbandoned](bus, w, log)
	subscribe[world.PlayerTeleported](bus, w, log)
	subscribe[world.PlayerMoved](bus, w, log)
}

func subscribe[T world.Event](bus *event.Bus, w *Writer, log *zap.Logger) {
	event.Subscribe(bus, func(e T) {
		rec := record{At: time.Now().UTC(), Type: e.EventType(), Data: e}
		if err := w.Write(rec); err != nil {
			log.Warn("journal write failed",
				zap.String("type", rec.Type),
				zap.Error(err))
		}
	})
}
