package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"siegecraft.ai/internal/sim/world"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	// now picks the hourly file a write lands in.
	now func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
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

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
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

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditLogger writes audit JSONL entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

// DayLogger writes one JSONL entry per siege day (compressed).
type DayLogger struct{ w *JSONLZstdWriter }

func NewDayLogger(worldDir string) *DayLogger {
	return &DayLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "days"), "days")}
}

func (l *DayLogger) WriteDay(v world.DaySummary) error { return l.w.Write(v) }
func (l *DayLogger) Close() error                      { return l.w.Close() }

// SiegeLogger keeps every siege outcome next to the audit trail.
type SiegeLogger struct{ w *JSONLZstdWriter }

func NewSiegeLogger(worldDir string) *SiegeLogger {
	return &SiegeLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "sieges"), "sieges")}
}

func (l *SiegeLogger) RecordSiegeResult(v world.SiegeResult) { _ = l.w.Write(v) }
func (l *SiegeLogger) Close() error                          { return l.w.Close() }

// AuditTee fans each entry out to every logger and returns the first error.
type AuditTee []world.AuditLogger

func (t AuditTee) WriteAudit(e world.AuditEntry) error {
	var first error
	for _, l := range t {
		if err := l.WriteAudit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type SiegeTee []world.SiegeRecorder

func (t SiegeTee) RecordSiegeResult(r world.SiegeResult) {
	for _, rec := range t {
		rec.RecordSiegeResult(r)
	}
}
