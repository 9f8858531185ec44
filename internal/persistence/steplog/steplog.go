// Package steplog streams per-step snapshots to zstd-compressed JSON lines.
package steplog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/abm-fx/internal/engine"
)

// ErrClosed is returned by WriteSnapshot after Close.
var ErrClosed = errors.New("step log closed")

// Writer appends one JSON line per snapshot. It implements engine.SnapshotSink.
type Writer struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Path returns the file the log for runID is written to under dir.
func Path(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("steps-%s.jsonl.zst", runID))
}

// Open creates dir if needed and starts a new log for runID.
func Open(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create step log dir: %w", err)
	}
	path := Path(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open step log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// WriteSnapshot appends snap as one line.
func (w *Writer) WriteSnapshot(snap engine.ModelSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return ErrClosed
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes buffered lines and finishes the zstd frame.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var errs []error
	errs = append(errs, w.w.Flush())
	errs = append(errs, w.enc.Close())
	errs = append(errs, w.f.Close())
	w.w, w.enc, w.f = nil, nil, nil
	return errors.Join(errs...)
}

// ReadAll decodes every snapshot in a finished log.
func ReadAll(path string) ([]engine.ModelSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open step log: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var out []engine.ModelSnapshot
	jd := json.NewDecoder(dec)
	for {
		var snap engine.ModelSnapshot
		if err := jd.Decode(&snap); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("decode step log line %d: %w", len(out)+1, err)
		}
		out = append(out, snap)
	}
}
