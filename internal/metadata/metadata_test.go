package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"s7gateway/internal/faults"
)

func writeTestDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine_detail.yml")
	content := `
call_functions:
  send_signal:
    kwargs:
      signal_name:
        options: ["alarm", "speed"]
monitor_functions:
  monitor_on_change:
    kwargs: {}
errors:
  default: "1.1.4"
  busy: "1.2.2"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadResolvesFunctionsAndOptions(t *testing.T) {
	m, err := Load(writeTestDoc(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.IsCallFunction("send_signal") {
		t.Fatal("expected send_signal to be a registered call function")
	}
	if m.IsCallFunction("nonexistent") {
		t.Fatal("expected nonexistent to not be registered")
	}
	if !m.IsMonitorFunction("monitor_on_change") {
		t.Fatal("expected monitor_on_change to be registered")
	}
	opts := m.CallFunctionOptions("send_signal", "signal_name")
	if len(opts) != 2 || opts[0] != "alarm" {
		t.Fatalf("unexpected options: %v", opts)
	}
}

func TestErrorCodeFallsBackToDefault(t *testing.T) {
	m, err := Load(writeTestDoc(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.ErrorCode("busy") != "1.2.2" {
		t.Fatalf("expected table entry, got %q", m.ErrorCode("busy"))
	}
	if m.ErrorCode("never_registered") != "1.1.4" {
		t.Fatalf("expected default fallback, got %q", m.ErrorCode("never_registered"))
	}
}

func TestErrorCodeForKindUsesStringForm(t *testing.T) {
	m, err := Load(writeTestDoc(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.ErrorCodeFor(faults.Busy) != "1.2.2" {
		t.Fatalf("expected busy kind to resolve via its string form, got %q", m.ErrorCodeFor(faults.Busy))
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if kind, ok := faults.KindOf(err); !ok || kind != faults.InvalidDescriptor {
		t.Fatalf("expected InvalidDescriptor, got %v", err)
	}
}
