package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_JSONKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Options{Service: "swapd", Env: "test", Stdout: &buf})
	defer closeFn()

	logger.Info("hello", "amount", 100)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "amount"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing key %q in %v", key, entry)
		}
	}
	if entry["severity"] != "INFO" {
		t.Errorf("severity = %v, want INFO", entry["severity"])
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want hello", entry["message"])
	}
}

func TestSetup_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swap.log")
	var buf bytes.Buffer
	logger, closeFn := Setup(Options{Service: "swap", File: path, Stdout: &buf})

	logger.Warn("persisted")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "persisted") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "persisted") {
		t.Errorf("stdout missing entry: %s", buf.String())
	}
}

func TestComponent_NilLogger(t *testing.T) {
	if Component(nil, "validator") == nil {
		t.Fatal("expected non-nil logger")
	}
}
