package errlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FranksOps/reelrank/internal/model"
)

const maxLineBytes = 8 << 20

// Log is the parsed content of an error log.
type Log struct {
	Records []model.ErrorRecord
	// Malformed counts lines that were not valid records and were skipped.
	Malformed int
}

// ReadFile parses the log at path. A missing file yields an empty Log.
func ReadFile(path string) (Log, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Log{}, nil
	}
	if err != nil {
		return Log{}, fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses line-delimited records from r, skipping and counting lines
// that are not JSON objects or lack the required fields. Blank lines are
// ignored.
func Read(r io.Reader) (Log, error) {
	var out Log

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec model.ErrorRecord
		if err := json.Unmarshal(line, &rec); err != nil || !valid(rec) {
			out.Malformed++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read error log: %w", err)
	}
	return out, nil
}

func valid(rec model.ErrorRecord) bool {
	return !rec.TS.IsZero() && rec.Context != "" && rec.ErrorType != ""
}
