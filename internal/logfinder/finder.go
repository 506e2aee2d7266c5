// Package logfinder locates the combat log directory and the active
// log file within it.
package logfinder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EnvLogDir is the environment variable name for specifying the log directory.
const EnvLogDir = "FFLOG_LOGDIR"

// logPattern matches the combat log files the game's log plugin writes.
const logPattern = "*.log"

// Sentinel errors.
var (
	ErrLogDirNotFound = errors.New("log directory not found")
	ErrNoLogFiles     = errors.New("no log files found")
)

// DefaultLogDirs returns candidate combat-log directories in priority order.
// The directories are OS-specific (the log plugin writes under the ACT
// profile directory on Windows).
func DefaultLogDirs() []string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		// Fallback: try to construct from USERPROFILE
		userProfile := os.Getenv("USERPROFILE")
		if userProfile != "" {
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
	}

	if appData == "" {
		return nil
	}

	return []string{
		filepath.Join(appData, "Advanced Combat Tracker", "FFXIVLogs"),
	}
}

// FindLogDir returns the combat log directory.
//
// Priority:
//  1. explicit (if non-empty)
//  2. FFLOG_LOGDIR environment variable
//  3. Auto-detect from DefaultLogDirs()
//
// The directory must exist but does not need to contain log files yet;
// a live session may start before the game writes its first line.
// Returns ErrLogDirNotFound if no valid directory is found. The
// returned path has symlinks resolved for consistency.
func FindLogDir(explicit string) (string, error) {
	// 1. Check explicit
	if explicit != "" {
		if resolved := resolveLogDir(explicit); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: specified directory does not exist", ErrLogDirNotFound)
	}

	// 2. Check environment variable
	if envDir := os.Getenv(EnvLogDir); envDir != "" {
		if resolved := resolveLogDir(envDir); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s environment variable points to an invalid directory", ErrLogDirNotFound, EnvLogDir)
	}

	// 3. Auto-detect
	for _, dir := range DefaultLogDirs() {
		if resolved := resolveLogDir(dir); resolved != "" {
			return resolved, nil
		}
	}

	return "", ErrLogDirNotFound
}

// logCandidate holds a log file path and its cached modification time.
// This avoids race conditions where files are deleted between stat and sort.
type logCandidate struct {
	path    string
	modTime int64
}

// FindLatestLogFile returns the path to the most recently modified
// log file in the given directory.
//
// Returns ErrNoLogFiles if no log files are found.
//
// Stat results are cached to avoid TOCTOU race conditions where log
// files could be deleted between filtering and sorting.
func FindLatestLogFile(dir string) (string, error) {
	pattern := filepath.Join(dir, logPattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("globbing log files: %w", err)
	}

	if len(matches) == 0 {
		return "", ErrNoLogFiles
	}

	// Stat files once and cache results to avoid race conditions
	candidates := make([]logCandidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil {
			// Skip files that can't be stat'd (deleted, permission issues, etc.)
			continue
		}
		// Also skip non-regular files (directories, symlinks, etc.)
		if !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, logCandidate{
			path:    m,
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(candidates) == 0 {
		return "", ErrNoLogFiles
	}

	// Sort by cached modification time (newest first)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})

	return candidates[0].path, nil
}

// resolveLogDir resolves symlinks and verifies the path is a directory.
// Returns the resolved path if valid, empty string otherwise. Unlike
// file discovery it does not require any log file to be present.
func resolveLogDir(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	// Resolve symlinks (works with Windows Junctions in Go 1.20+)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}

	return resolved
}
