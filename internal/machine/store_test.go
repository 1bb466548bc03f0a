package machine

import (
	"path/filepath"
	"testing"

	"s7gateway/internal/codec"
	"s7gateway/internal/faults"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func sampleMachine() Machine {
	return Machine{
		MachineName: "line1",
		Host:        "10.0.0.5",
		Rack:        0,
		Slot:        1,
		Signals: map[string]Descriptor{
			"alarm": {DBNumber: 10, Offset: 0, Type: codec.Bool, BitPos: 3, HasBitPos: true},
			"temp":  {DBNumber: 10, Offset: 2, Type: codec.Real},
		},
		Monitor: MonitorPlan{
			OnChange: map[string]AckSpec{
				"temp": {Ack: true, AckSignal: "temp_ack", AckValue: AckValue{Same: true}},
			},
			Continuous: map[string]AckSpec{},
		},
	}
}

func TestStoreAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	m := sampleMachine()

	if err := s.Add("uid1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Get("uid1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Host != m.Host || got.Rack != m.Rack || got.Slot != m.Slot {
		t.Fatalf("endpoint mismatch: got %+v", got)
	}
	if len(got.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(got.Signals))
	}
	alarm := got.Signals["alarm"]
	if alarm.Type != codec.Bool || !alarm.HasBitPos || alarm.BitPos != 3 {
		t.Fatalf("alarm descriptor mismatch: %+v", alarm)
	}
	ack := got.Monitor.OnChange["temp"]
	if !ack.Ack || ack.AckSignal != "temp_ack" || !ack.AckValue.Same {
		t.Fatalf("ack spec mismatch: %+v", ack)
	}
}

func TestStoreGetUnknownMachine(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	kind, ok := faults.KindOf(err)
	if !ok || kind != faults.UnknownMachine {
		t.Fatalf("expected UnknownMachine, got %v", err)
	}
}

func TestStoreDeleteRemovesEntry(t *testing.T) {
	s := newTestStore(t)
	m := sampleMachine()
	if err := s.Add("uid1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}

	removed, ok, err := s.Delete("uid1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok || removed.Host != m.Host {
		t.Fatalf("expected removed machine, got ok=%v removed=%+v", ok, removed)
	}
	if _, err := s.Get("uid1"); err == nil {
		t.Fatal("expected machine gone after delete")
	}
}

func TestStoreDeleteUnknownIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Delete("nope")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown uid")
	}
}

func TestStoreAllListsEveryMachine(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("uid1", sampleMachine()); err != nil {
		t.Fatalf("Add uid1: %v", err)
	}
	m2 := sampleMachine()
	m2.MachineName = "line2"
	if err := s.Add("uid2", m2); err != nil {
		t.Fatalf("Add uid2: %v", err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(all))
	}
}
