// Package errlog appends structured failure records to a line-delimited JSON
// log and reads them back for review.
package errlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
)

// DefaultPath is the error log location relative to the working directory.
const DefaultPath = "error_log.jsonl"

// Sink is an append-only error log, safe for concurrent use. The file is
// opened lazily on the first record. A failure to write is reported once via
// the logger and never returned to the caller.
type Sink struct {
	path   string
	runID  string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	file     *os.File
	written  int
	dropped  int
	warnOnce sync.Once
}

// New creates a sink writing to path. runID is stamped on records that do
// not carry one.
func New(path, runID string, logger *slog.Logger) *Sink {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		path:   path,
		runID:  runID,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends rec as a single line.
func (s *Sink) Record(rec model.ErrorRecord) {
	if rec.TS.IsZero() {
		rec.TS = s.now().UTC()
	}
	if rec.RunID == "" {
		rec.RunID = s.runID
	}
	metrics.RecordError(rec.Context)

	data, err := json.Marshal(rec)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.dropped++
		s.fail(rec, fmt.Errorf("marshal error record: %w", err))
		return
	}
	data = append(data, '\n')

	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			s.dropped++
			s.fail(rec, fmt.Errorf("open error log: %w", err))
			return
		}
		s.file = f
	}

	// One Write call per record; O_APPEND keeps lines whole across writers.
	if _, err := s.file.Write(data); err != nil {
		s.dropped++
		s.fail(rec, fmt.Errorf("write error log: %w", err))
		return
	}
	s.written++
}

func (s *Sink) fail(rec model.ErrorRecord, err error) {
	s.warnOnce.Do(func() {
		s.logger.Error("error log unavailable, further failures will not be reported",
			"path", s.path, "err", err)
	})
	s.logger.Debug("dropped error record", "context", rec.Context, "error_type", rec.ErrorType, "message", rec.ErrorMessage)
}

// Stats reports how many records were written and dropped.
func (s *Sink) Stats() (written, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped
}

// Close closes the underlying file if it was opened.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
