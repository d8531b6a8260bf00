package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	envHome     = "QA_RUNNER_HOME"
	userHomeDir = ".qa-runner"
	logFileName = "qa-runner.log"
)

var (
	homeMu  sync.Mutex
	homeDir string
)

// GetHome returns the qa-runner home directory, resolved once per process:
// $QA_RUNNER_HOME, then <home> when the binary lives in <home>/bin, then
// ~/.qa-runner, then the working directory.
func GetHome() string {
	homeMu.Lock()
	defer homeMu.Unlock()
	if homeDir == "" {
		homeDir = resolveHome(os.Getenv, os.Executable, os.UserHomeDir)
	}
	return homeDir
}

// GetLogDir returns <home>/logs.
func GetLogDir() string {
	return filepath.Join(GetHome(), "logs")
}

// DefaultLogFile is the log used by commands that have no artifacts dir.
func DefaultLogFile() string {
	return filepath.Join(GetLogDir(), logFileName)
}

// LogFile picks the log path: log.file from config, else fallback, else
// the file under the qa-runner home.
func (c *Config) LogFile(fallback string) string {
	switch {
	case c.Log.File != "":
		return c.Log.File
	case fallback != "":
		return fallback
	default:
		return DefaultLogFile()
	}
}

func resolveHome(getenv func(string) string, executable func() (string, error), userHome func() (string, error)) string {
	if env := getenv(envHome); env != "" {
		return env
	}

	if exe, err := executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if bin := filepath.Dir(exe); filepath.Base(bin) == "bin" {
			return filepath.Dir(bin)
		}
	}

	if home, err := userHome(); err == nil && home != "" {
		return filepath.Join(home, userHomeDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// ResetHome drops the cached home directory.
func ResetHome() {
	homeMu.Lock()
	defer homeMu.Unlock()
	homeDir = ""
}
