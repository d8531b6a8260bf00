package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LogDir is the run log directory under the artifacts root.
const LogDir = "logs"

// LogPath returns where the run log for runID is written.
func LogPath(artifactsDir, runID string) string {
	return filepath.Join(artifactsDir, LogDir, "run_"+runID+".json")
}

// Write persists the run log under artifactsDir and returns its path.
func Write(artifactsDir string, l *RunLog) (string, error) {
	path := LogPath(artifactsDir, l.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	if err := atomicWriteJSON(path, l); err != nil {
		return "", fmt.Errorf("write run log: %w", err)
	}
	return path, nil
}

// Read loads a run log written by Write.
func Read(path string) (*RunLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	var l RunLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse run log %s: %w", path, err)
	}
	return &l, nil
}

// atomicWriteJSON writes v to a temp file beside path and renames it into
// place so readers never see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
