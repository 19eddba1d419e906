package changelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"passthru/internal/effects"
	"passthru/pkg/logging"
)

const subsystem = "ChangeLog"

// DefaultPath is where the change log is persisted
const DefaultPath = "/var/lib/passthru/changes.json"

// State is the lifecycle of the log
type State int

const (
	StateEmpty State = iota
	StateRecording
	StateDraining
	StatePartiallyFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateRecording:
		return "recording"
	case StateDraining:
		return "draining"
	case StatePartiallyFailed:
		return "partially-failed"
	default:
		return "unknown"
	}
}

// Log is the ordered, append-only record of host mutations. Every append is
// persisted immediately as one JSON document.
type Log struct {
	mu      sync.Mutex
	fx      effects.Effects
	path    string
	records []Record
	state   State
}

// Open loads the log at path. A missing file starts an empty log. A file that
// cannot be decoded is moved aside to <path>.corrupt-<timestamp> and an empty
// log is started with a warning.
func Open(fx effects.Effects, path string) (*Log, error) {
	if path == "" {
		path = DefaultPath
	}
	l := &Log{fx: fx, path: path}

	data, err := fx.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug(subsystem, "No change log at %s, starting empty", path)
			return l, nil
		}
		return nil, fmt.Errorf("failed to read change log %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%s", path, fx.Now().Format("20060102_150405"))
		logging.Warn(subsystem, "Failed to load change log %s: %v. Starting fresh.", path, err)
		if renameErr := fx.Rename(path, aside); renameErr != nil {
			logging.Warn(subsystem, "Could not move unreadable change log aside: %v", renameErr)
		} else {
			logging.Warn(subsystem, "Unreadable change log kept as %s", aside)
		}
		return l, nil
	}

	l.records = records
	if len(records) > 0 {
		l.state = StateRecording
	}
	logging.Debug(subsystem, "Loaded %d changes from %s", len(records), path)
	return l, nil
}

// Path returns the location of the persisted log
func (l *Log) Path() string {
	return l.path
}

// State returns the current lifecycle state
func (l *Log) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Len returns the number of recorded changes
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Changes returns a snapshot of the records, oldest first
func (l *Log) Changes() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// Record appends change and persists the log. If persisting fails the change
// stays in memory and the error is returned.
func (l *Log) Record(change Change) error {
	if change == nil {
		return fmt.Errorf("cannot record a nil change")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		ID:         uuid.New().String(),
		RecordedAt: l.fx.Now().UTC(),
		Change:     change,
	}
	l.records = append(l.records, rec)
	l.state = StateRecording
	logging.Info(subsystem, "Recording change: %s", change.Describe())
	logging.Audit(logging.AuditEvent{
		Action:  string(change.Kind()),
		Target:  change.Target(),
		Outcome: "success",
		Detail:  change.Describe(),
	})

	return l.saveLocked()
}

// Clear discards every record and persists the empty log
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	l.records = nil
	l.state = StateEmpty
	logging.Info(subsystem, "Discarded %d recorded changes", n)
	return l.saveLocked()
}

func (l *Log) saveLocked() error {
	records := l.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize change log: %w", err)
	}

	if err := l.fx.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(l.path), err)
	}
	if err := l.fx.WriteFile(l.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to save change log %s: %w", l.path, err)
	}
	return nil
}
