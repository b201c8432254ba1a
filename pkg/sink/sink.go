// Package sink implements the Data Sink (C8): the durable side-channel the
// Coordinator and Analyzer write transition and snapshot events to. Sink is
// the contract; FileSink is the one concrete filesystem-backed
// implementation this repo ships (JSON-lines append log per kind, one
// directory per task id), grounded on the teacher's plain os.WriteFile /
// json.MarshalIndent idiom (test/e2e/golden.go) and the retention-sweep
// shape of pkg/cleanup.Service (idempotent, safe to run repeatedly,
// logged-not-panicked failures).
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/synthline/corestation/pkg/resource"
)

// Kind identifies a snapshot's subject, per §4.8.
type Kind string

const (
	KindDeviceStatus Kind = "device-status"
	KindStationState Kind = "station-state"
	KindGloveboxEnv  Kind = "glovebox-env"
	KindResourceInfo Kind = "resource-info"
)

// DischargeEntry is one tray's discharge record within a DischargeLog.
type DischargeEntry struct {
	Source           string         `json:"source"`
	Destination      string         `json:"destination"`
	TaskID           *int           `json:"task_id,omitempty"`
	SubstanceDetails map[string]any `json:"substance_details,omitempty"`
}

// DischargeLog is the full record of one discharge run.
type DischargeLog struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Entries    []DischargeEntry `json:"entries"`
}

// BatchInEntry records one batch_in_tray call.
type BatchInEntry struct {
	At              time.Time        `json:"at"`
	ResourceReqList []map[string]any `json:"resource_req_list"`
}

// BatchOutEntry records one batch_out_tray call.
type BatchOutEntry struct {
	At         time.Time        `json:"at"`
	LayoutList []map[string]any `json:"layout_list"`
	MoveType   string           `json:"move_type"`
}

// TaskTimestamps carries whichever status-transition instants are known at
// the time TaskStatus is recorded; zero values are omitted.
type TaskTimestamps struct {
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}

// Sink is the interface the Coordinator and Analyzer depend on. Every
// method is side-effect-only; implementations must make reads by id/kind
// idempotent (repeating a call must not corrupt prior state).
type Sink interface {
	Snapshot(ctx context.Context, kind Kind, data any) error
	TaskCreate(ctx context.Context, taskID int, info any) error
	TaskStatus(ctx context.Context, taskID int, status string, timestamps TaskTimestamps) error
	TaskPayload(ctx context.Context, taskID int, payload any) error
	ResourceCheck(ctx context.Context, taskID int, report resource.Report) error
	TaskDischarge(ctx context.Context, taskID *int, log DischargeLog) error
	BatchInLog(ctx context.Context, entry BatchInEntry) error
	BatchOutLog(ctx context.Context, entry BatchOutEntry) error
	RetentionSweep(ctx context.Context, days int) (removed int, err error)
}

// terminalTaskStatuses are the statuses RetentionSweep considers a task
// eligible for removal, never statuses it is still actively progressing
// through.
var terminalTaskStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"stopped":   true,
	"cancelled": true,
}

// taskState is the small marker file FileSink keeps per task directory so
// RetentionSweep can decide eligibility without re-reading every log.
type taskState struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileSink is the default Sink: one directory per task id under baseDir,
// one append-only JSON-lines file per log kind, a top-level snapshots
// directory for Snapshot calls.
type FileSink struct {
	baseDir string
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewFileSink creates (if needed) baseDir and returns a FileSink rooted
// there.
func NewFileSink(baseDir string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create base dir %q: %w", baseDir, err)
	}
	return &FileSink{baseDir: baseDir, logger: logger}, nil
}

func (s *FileSink) taskDir(taskID int) string {
	return filepath.Join(s.baseDir, "tasks", fmt.Sprintf("%d", taskID))
}

func (s *FileSink) appendJSONLine(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sink: create dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %q: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("sink: write %q: %w", path, err)
	}
	return nil
}

func (s *FileSink) writeState(taskID int, status string) error {
	state := taskState{Status: status, UpdatedAt: time.Now()}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal task state: %w", err)
	}
	path := filepath.Join(s.taskDir(taskID), "state.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sink: create task dir: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Snapshot appends a timestamped snapshot record to kind's log.
func (s *FileSink) Snapshot(_ context.Context, kind Kind, data any) error {
	path := filepath.Join(s.baseDir, "snapshots", string(kind)+".jsonl")
	return s.appendJSONLine(path, map[string]any{"at": time.Now(), "data": data})
}

// TaskCreate records a new task handle's creation info.
func (s *FileSink) TaskCreate(_ context.Context, taskID int, info any) error {
	path := filepath.Join(s.taskDir(taskID), "create.jsonl")
	if err := s.appendJSONLine(path, map[string]any{"at": time.Now(), "info": info}); err != nil {
		return err
	}
	return s.writeState(taskID, "created")
}

// TaskStatus records a status transition and updates the task's retention
// marker.
func (s *FileSink) TaskStatus(_ context.Context, taskID int, status string, timestamps TaskTimestamps) error {
	path := filepath.Join(s.taskDir(taskID), "status.jsonl")
	entry := map[string]any{"at": time.Now(), "status": status, "timestamps": timestamps}
	if err := s.appendJSONLine(path, entry); err != nil {
		return err
	}
	return s.writeState(taskID, status)
}

// TaskPayload snapshots the built payload submitted for a task.
func (s *FileSink) TaskPayload(_ context.Context, taskID int, payload any) error {
	path := filepath.Join(s.taskDir(taskID), "payload.json")
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal task payload: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sink: create task dir: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// ResourceCheck appends a Readiness Report for the task.
func (s *FileSink) ResourceCheck(_ context.Context, taskID int, report resource.Report) error {
	path := filepath.Join(s.taskDir(taskID), "resource-check.jsonl")
	return s.appendJSONLine(path, map[string]any{"at": time.Now(), "report": report})
}

// TaskDischarge appends a discharge log, either task-scoped (taskID
// non-nil) or to the top-level discharge log (taskID nil, for empties-only
// runs).
func (s *FileSink) TaskDischarge(_ context.Context, taskID *int, log DischargeLog) error {
	if taskID != nil {
		path := filepath.Join(s.taskDir(*taskID), "discharge.jsonl")
		return s.appendJSONLine(path, log)
	}
	path := filepath.Join(s.baseDir, "discharge.jsonl")
	return s.appendJSONLine(path, log)
}

// BatchInLog appends a load-in record to the top-level log.
func (s *FileSink) BatchInLog(_ context.Context, entry BatchInEntry) error {
	path := filepath.Join(s.baseDir, "batch-in.jsonl")
	return s.appendJSONLine(path, entry)
}

// BatchOutLog appends a discharge-call record to the top-level log.
func (s *FileSink) BatchOutLog(_ context.Context, entry BatchOutEntry) error {
	path := filepath.Join(s.baseDir, "batch-out.jsonl")
	return s.appendJSONLine(path, entry)
}

// RetentionSweep removes task directories whose last recorded status is
// terminal and whose last update is older than days. Errors reading one
// task's state are logged and skipped rather than aborting the sweep.
func (s *FileSink) RetentionSweep(_ context.Context, days int) (int, error) {
	tasksDir := filepath.Join(s.baseDir, "tasks")
	entries, err := os.ReadDir(tasksDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sink: list task dirs: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(tasksDir, entry.Name())
		statePath := filepath.Join(dir, "state.json")
		b, err := os.ReadFile(statePath)
		if err != nil {
			s.logger.Warn("sink: retention sweep: cannot read task state", "dir", dir, "error", err)
			continue
		}
		var st taskState
		if err := json.Unmarshal(b, &st); err != nil {
			s.logger.Warn("sink: retention sweep: cannot parse task state", "dir", dir, "error", err)
			continue
		}
		if !terminalTaskStatuses[st.Status] || st.UpdatedAt.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("sink: retention sweep: cannot remove task dir", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
