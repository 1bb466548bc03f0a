package signalops

import (
	"path/filepath"
	"testing"
	"time"

	"s7gateway/internal/faults"
	"s7gateway/internal/machine"
	"s7gateway/internal/plcsession"
	"s7gateway/internal/registry"
)

func newTestOps(t *testing.T) *Ops {
	t.Helper()
	store, err := machine.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg := registry.New(plcsession.Options{
		MaxRetries: 1, RetryDelay: time.Millisecond, LockTimeout: time.Second,
		ConnectTimeout: 50 * time.Millisecond, CacheTime: time.Millisecond,
		ConsecutiveReads: 1, MaxCacheEntries: 10,
	})
	return New(store, reg)
}

func TestReadSignalUnknownMachine(t *testing.T) {
	ops := newTestOps(t)
	r := ops.ReadSignal("nope", "alarm")
	kind, ok := faults.KindOf(r.Err)
	if !ok || kind != faults.UnknownMachine {
		t.Fatalf("expected UnknownMachine, got %v", r.Err)
	}
	if r.Signal != "alarm" {
		t.Fatalf("expected signal echoed back, got %q", r.Signal)
	}
}

func TestReadSignalUnknownSignal(t *testing.T) {
	ops := newTestOps(t)
	m := machine.Machine{Host: "192.0.2.1", Rack: 0, Slot: 1, Signals: map[string]machine.Descriptor{}}
	if err := ops.store.Add("uid1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}

	r := ops.ReadSignal("uid1", "missing")
	kind, ok := faults.KindOf(r.Err)
	if !ok || kind != faults.UnknownSignal {
		t.Fatalf("expected UnknownSignal, got %v", r.Err)
	}
}

func TestWriteManyArityMismatch(t *testing.T) {
	ops := newTestOps(t)
	r := ops.WriteMany("uid1", []string{"a", "b"}, []interface{}{1})
	kind, ok := faults.KindOf(r.Err)
	if !ok || kind != faults.Arity {
		t.Fatalf("expected Arity, got %v", r.Err)
	}
}

func TestReadManyDegradesPerSignalFailureToNull(t *testing.T) {
	ops := newTestOps(t)
	m := machine.Machine{Host: "192.0.2.1", Rack: 0, Slot: 1, Signals: map[string]machine.Descriptor{}}
	if err := ops.store.Add("uid1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}

	out := ops.ReadMany("uid1", []string{"missing1", "missing2"})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	for k, v := range out {
		if v != nil {
			t.Fatalf("expected nil for unresolved signal %q, got %v", k, v)
		}
	}
}
