package paper

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome is one performance sample keyed by setup.
type Outcome struct {
	SetupKey   string    `json:"setup_key"`
	PnLPercent float64   `json:"pnl_percent"`
	Ts         time.Time `json:"ts"`
}

// JSONLRecorder appends records as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
		now:  time.Now,
	}, nil
}

// Record writes a single value to the underlying JSONL file.
func (r *JSONLRecorder) Record(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	return r.enc.Encode(v)
}

// RecordOutcome appends a setup result.
func (r *JSONLRecorder) RecordOutcome(setupKey string, pnlPercent float64) error {
	return r.Record(Outcome{SetupKey: setupKey, PnLPercent: pnlPercent, Ts: r.now().UTC()})
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// LoadOutcomes reads previously recorded outcomes. A missing file yields no records.
// Lines that do not decode as outcomes are skipped.
func LoadOutcomes(path string) ([]Outcome, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []Outcome
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var o Outcome
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil || o.SetupKey == "" {
			continue
		}
		out = append(out, o)
	}
	return out, scanner.Err()
}
