package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Heartbeat is the status file written after every cycle.
type Heartbeat struct {
	CycleID    string `json:"cycle_id"`
	Status     string `json:"status"`
	Outcome    string `json:"outcome"`
	Inserted   int    `json:"inserted"`
	Failed     int    `json:"failed"`
	FinishedAt string `json:"finished_at"`
}

// HeartbeatWriter persists heartbeats to disk. A writer with an empty path
// is disabled.
type HeartbeatWriter struct {
	path string
	now  func() time.Time
}

func NewHeartbeatWriter(path string) *HeartbeatWriter {
	return &HeartbeatWriter{path: path, now: time.Now}
}

func (h *HeartbeatWriter) Enabled() bool {
	return h != nil && h.path != ""
}

func (h *HeartbeatWriter) Write(result CycleResult) error {
	if !h.Enabled() {
		return nil
	}

	dir := filepath.Dir(h.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create heartbeat dir: %w", err)
		}
	}

	hb := Heartbeat{
		CycleID:    result.CycleID,
		Status:     string(result.Status),
		Outcome:    result.Outcome,
		Inserted:   result.Inserted,
		Failed:     result.Failed,
		FinishedAt: h.now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat tmp: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		return fmt.Errorf("rename heartbeat: %w", err)
	}

	return nil
}
