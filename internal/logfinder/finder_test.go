package logfinder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindLatestLogFile(t *testing.T) {
	dir := t.TempDir()

	// Create test log files with different modification times
	files := []string{
		"Network_26560_20240101.log",
		"Network_26560_20240102.log",
		"Network_26560_20240103.log",
	}

	for i, name := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
		// Set modification time (oldest first)
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindLatestLogFile(dir)
	if err != nil {
		t.Fatalf("FindLatestLogFile() error = %v", err)
	}

	// Should return the most recently modified file (last one)
	want := files[len(files)-1]
	if filepath.Base(got) != want {
		t.Errorf("FindLatestLogFile() = %v, want %v", filepath.Base(got), want)
	}
}

func TestFindLatestLogFile_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()

	logPath := filepath.Join(dir, "Network_26560_20240101.log")
	if err := os.WriteFile(logPath, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}
	// A newer non-log file must not win
	notesPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notesPath, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}
	newer := time.Now().Add(time.Hour)
	if err := os.Chtimes(notesPath, newer, newer); err != nil {
		t.Fatal(err)
	}

	got, err := FindLatestLogFile(dir)
	if err != nil {
		t.Fatalf("FindLatestLogFile() error = %v", err)
	}
	if got != logPath {
		t.Errorf("FindLatestLogFile() = %v, want %v", got, logPath)
	}
}

func TestFindLatestLogFile_NoFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := FindLatestLogFile(dir)
	if err == nil {
		t.Error("FindLatestLogFile() expected error for empty directory")
	}
	if !errors.Is(err, ErrNoLogFiles) {
		t.Errorf("FindLatestLogFile() error = %v, want %v", err, ErrNoLogFiles)
	}
}

func TestFindLogDir_EnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, dir)

	got, err := FindLogDir("")
	if err != nil {
		t.Fatalf("FindLogDir() error = %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("FindLogDir() = %v, want %v", got, want)
	}
}

func TestFindLogDir_ExplicitBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, "/some/other/path")

	got, err := FindLogDir(dir)
	if err != nil {
		t.Fatalf("FindLogDir() error = %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("FindLogDir() = %v, want %v", got, want)
	}
}

func TestFindLogDir_EmptyDirIsValid(t *testing.T) {
	// A live session may target a directory the game has not written
	// to yet; existence is enough.
	dir := t.TempDir()

	if _, err := FindLogDir(dir); err != nil {
		t.Errorf("FindLogDir() error = %v, want nil for existing empty dir", err)
	}
}

func TestFindLogDir_ExplicitInvalid(t *testing.T) {
	_, err := FindLogDir("/nonexistent/path")
	if err == nil {
		t.Error("FindLogDir() expected error for invalid explicit path")
	}
	if !errors.Is(err, ErrLogDirNotFound) {
		t.Errorf("FindLogDir() error = %v, want %v", err, ErrLogDirNotFound)
	}
}

func TestFindLogDir_EnvVarInvalid(t *testing.T) {
	t.Setenv(EnvLogDir, "/nonexistent/path")

	_, err := FindLogDir("")
	if err == nil {
		t.Error("FindLogDir() expected error for invalid env var path")
	}
	if !errors.Is(err, ErrLogDirNotFound) {
		t.Errorf("FindLogDir() error = %v, want %v", err, ErrLogDirNotFound)
	}
}
