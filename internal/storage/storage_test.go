package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	storage := New("/test/output")

	if storage == nil {
		t.Fatal("New() returned nil")
	}
	if storage.outputDir != "/test/output" {
		t.Errorf("Expected outputDir /test/output, got %s", storage.outputDir)
	}
	if storage.file != nil {
		t.Error("Expected file to be nil initially")
	}
	if storage.stopChan == nil {
		t.Error("Expected stopChan to be initialized")
	}
}

func TestStorage_StartAndStop(t *testing.T) {
	storage := New(t.TempDir())

	if err := storage.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := storage.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestStorage_Write(t *testing.T) {
	tempDir := t.TempDir()
	storage := New(tempDir)

	if err := storage.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer func() {
		if err := storage.Stop(); err != nil {
			t.Errorf("Stop() failed: %v", err)
		}
	}()

	payloads := []string{
		`{"aircraft_id":"9Q-CLM","latitude":-4.3,"longitude":15.3}`,
		`{"aircraft_id":"ET-AUQ","latitude":-1.5,"longitude":28.9}` + "\n",
	}
	for _, p := range payloads {
		if err := storage.Write([]byte(p)); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
	}

	name := fmt.Sprintf("positions_%s.log", time.Now().UTC().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(tempDir, name))
	if err != nil {
		t.Fatalf("Failed to read archive file: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 archive lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "9Q-CLM") {
		t.Errorf("Unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "ET-AUQ") {
		t.Errorf("Unexpected second line: %s", lines[1])
	}
	// A payload carrying its own newline must not produce a blank line.
	if !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("Unexpected archive tail: %q", string(data))
	}
}

func TestStorage_CreatesOutputDir(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "archive")
	storage := New(tempDir)

	if err := storage.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer storage.Stop()

	if _, err := os.Stat(tempDir); err != nil {
		t.Errorf("Expected output dir to be created: %v", err)
	}
}

func TestCompressFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "positions_2026-08-30.log")
	content := "line one\nline two\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	if err := compressFile(path); err != nil {
		t.Fatalf("compressFile() failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected original file to be removed")
	}

	f, err := os.Open(path + ".gz")
	if err != nil {
		t.Fatalf("Failed to open compressed file: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("Failed to read compressed content: %v", err)
	}
	if string(data) != content {
		t.Errorf("Expected content %q, got %q", content, string(data))
	}
}
