// Package cleanup reclaims leftover provider resources: shutdown devboxes,
// duplicate suspended instances, running strays and stale blueprints. Plans
// are snapshotted to disk before execution so a run only ever touches what
// it saw at planning time.
package cleanup

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordsDir is the directory name under the data dir that holds run records.
const RecordsDir = "cleanup-runs"

// Action is the kind of reclamation a job performs.
type Action string

const (
	ActionDeleteDevbox    Action = "delete_devbox"
	ActionSuspendDevbox   Action = "suspend_devbox"
	ActionDeleteBlueprint Action = "delete_blueprint"
)

// Job describes one reclamation derived at planning time.
type Job struct {
	Action     Action `json:"action"`
	ResourceID string `json:"resource_id"`
	Name       string `json:"name,omitempty"`
	Reason     string `json:"reason"`
}

// RecordStatus is the state of a persisted cleanup run.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusRunning   RecordStatus = "running"
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusFailed    RecordStatus = "failed"
)

// Record is a persisted cleanup run: the planned jobs snapshotted before
// execution, plus the outcome once the run finishes.
type Record struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt time.Time    `json:"started_at,omitzero"`
	EndedAt   time.Time    `json:"ended_at,omitzero"`
	Status    RecordStatus `json:"status"`
	DryRun    bool         `json:"dry_run"`

	Jobs    []Job    `json:"jobs"`
	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// NewRecord creates a pending record for the given plan.
func NewRecord(jobs []Job, dryRun bool) *Record {
	return &Record{
		ID:        generateID(),
		CreatedAt: time.Now(),
		Status:    RecordStatusPending,
		DryRun:    dryRun,
		Jobs:      jobs,
	}
}

// generateID creates a short random hex ID.
// Falls back to timestamp-based ID if random generation fails.
func generateID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(b)
}

// recordPath returns the path of a record file within dir.
func recordPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// Save persists the record under dir, creating it if needed.
func (r *Record) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	if err := os.WriteFile(recordPath(dir, r.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing record file: %w", err)
	}
	return nil
}

// LoadRecord reads one record from dir.
func LoadRecord(dir, id string) (*Record, error) {
	data, err := os.ReadFile(recordPath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("reading record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record file: %w", err)
	}
	return &rec, nil
}

// ListRecords returns all cleanup run records under dir.
func ListRecords(dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		id := entry.Name()[:len(entry.Name())-5]
		rec, err := LoadRecord(dir, id)
		if err != nil {
			continue // skip unreadable record files
		}
		records = append(records, rec)
	}
	return records, nil
}

// PruneRecords removes finished record files older than maxAge and returns
// how many were removed.
func PruneRecords(dir string, maxAge time.Duration) (int, error) {
	records, err := ListRecords(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, rec := range records {
		if !rec.isFinished() {
			continue
		}

		endTime := rec.EndedAt
		if endTime.IsZero() {
			endTime = rec.CreatedAt
		}
		if endTime.Before(cutoff) {
			if err := os.Remove(recordPath(dir, rec.ID)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (r *Record) isFinished() bool {
	switch r.Status {
	case RecordStatusCompleted, RecordStatusFailed:
		return true
	default:
		return false
	}
}
