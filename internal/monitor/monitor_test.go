package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"s7gateway/internal/eventbus"
	"s7gateway/internal/machine"
	"s7gateway/internal/plcsession"
	"s7gateway/internal/registry"
	"s7gateway/internal/signalops"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	store, err := machine.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg := registry.New(plcsession.Options{
		MaxRetries: 1, RetryDelay: time.Millisecond, LockTimeout: time.Second,
		ConnectTimeout: 20 * time.Millisecond, CacheTime: time.Millisecond,
		ConsecutiveReads: 1, MaxCacheEntries: 10,
	})
	ops := signalops.New(store, reg)
	bus := eventbus.New("127.0.0.1:1", "", 0)
	return New(store, ops, reg, bus)
}

// TestStartIsIdempotentAndTriggersReconnect exercises I7: calling
// Start twice for the same (machine, mode) must never produce a
// second worker, and the second call degrades to a reconnect signal.
func TestStartIsIdempotentAndTriggersReconnect(t *testing.T) {
	s := newTestSupervisor(t)
	defer s.StopAll("uid1")

	first := s.Start("uid1", OnChange)
	if first.AlreadyRunning {
		t.Fatal("expected first Start to create a new worker")
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 worker, got %d", s.Count())
	}

	second := s.Start("uid1", OnChange)
	if !second.AlreadyRunning {
		t.Fatal("expected second Start to report AlreadyRunning")
	}
	if s.Count() != 1 {
		t.Fatalf("expected still 1 worker after duplicate Start, got %d", s.Count())
	}

	s.mu.Lock()
	task := s.tasks[taskKey("uid1", OnChange)]
	s.mu.Unlock()
	select {
	case <-task.refresh:
	default:
		t.Fatal("expected duplicate Start to have queued a refresh signal")
	}
}

// TestStopIsIdempotent exercises spec's stop() semantics: stopping an
// unregistered task is a no-op, stopping a running one tears it down,
// and repeating the stop is harmless.
func TestStopIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t)

	if s.Stop("nope", OnChange) {
		t.Fatal("expected Stop on unknown task to report false")
	}

	s.Start("uid1", Continuous)
	if !s.Stop("uid1", Continuous) {
		t.Fatal("expected Stop on running task to report true")
	}
	if s.Count() != 0 {
		t.Fatalf("expected 0 workers after Stop, got %d", s.Count())
	}
	if s.Stop("uid1", Continuous) {
		t.Fatal("expected repeated Stop to report false")
	}
}

// TestStopTerminatesWorkerPromptly exercises I8: once Stop returns,
// the worker's loop must observe cancellation and exit well within one
// loop period.
func TestStopTerminatesWorkerPromptly(t *testing.T) {
	s := newTestSupervisor(t)
	s.Start("uid1", OnChange)

	s.mu.Lock()
	task := s.tasks[taskKey("uid1", OnChange)]
	s.mu.Unlock()

	s.Stop("uid1", OnChange)

	select {
	case <-task.done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected worker goroutine to exit promptly after Stop")
	}
}

// TestReconnectBroadcastsToEveryTask exercises the documented
// broadcast-to-all behavior: asking to reconnect one machine's session
// flags every registered task, regardless of machine_id.
func TestReconnectBroadcastsToEveryTask(t *testing.T) {
	s := newTestSupervisor(t)
	defer s.StopAll("uid1")
	defer s.StopAll("uid2")

	s.Start("uid1", OnChange)
	s.Start("uid2", Continuous)

	s.Reconnect("uid1")

	s.mu.Lock()
	t1 := s.tasks[taskKey("uid1", OnChange)]
	t2 := s.tasks[taskKey("uid2", Continuous)]
	s.mu.Unlock()

	select {
	case <-t1.refresh:
	default:
		t.Fatal("expected uid1's own task to receive the refresh signal")
	}
	select {
	case <-t2.refresh:
	default:
		t.Fatal("expected uid2's task to also receive the refresh signal (broadcast-to-all)")
	}
}

// TestStopAllOnlyTargetsMatchingMachine ensures StopAll is scoped to
// machine_id even though Reconnect is not.
func TestStopAllOnlyTargetsMatchingMachine(t *testing.T) {
	s := newTestSupervisor(t)
	defer s.StopAll("uid2")

	s.Start("uid1", OnChange)
	s.Start("uid1", Continuous)
	s.Start("uid2", OnChange)

	n := s.StopAll("uid1")
	if n != 2 {
		t.Fatalf("expected StopAll to stop 2 tasks for uid1, got %d", n)
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 remaining task for uid2, got %d", s.Count())
	}
}

// TestRunIterationUnknownMachineFails confirms the worker's per-pass
// resolution surfaces an unknown-machine error rather than panicking.
func TestRunIterationUnknownMachineFails(t *testing.T) {
	s := newTestSupervisor(t)
	task := &Task{machineID: "ghost", mode: OnChange}
	if err := s.runIteration(task, map[string]interface{}{}); err == nil {
		t.Fatal("expected runIteration to fail for an unknown machine")
	}
}

// TestRunIterationNoSignalsIsANoop exercises a machine with no
// monitor_signals entries configured: no read/write happens, and no
// event is published.
func TestRunIterationNoSignalsIsANoop(t *testing.T) {
	s := newTestSupervisor(t)
	if err := s.store.Add("uid1", machine.Machine{Host: "192.0.2.1", Rack: 0, Slot: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	task := &Task{machineID: "uid1", mode: OnChange}
	if err := s.runIteration(task, map[string]interface{}{}); err != nil {
		t.Fatalf("expected no-op pass to succeed, got %v", err)
	}
}

// TestValuesDifferUsesEpsilonForReals exercises the on-change
// comparison's float tolerance, distinct from plain != for other
// types.
func TestValuesDifferUsesEpsilonForReals(t *testing.T) {
	if valuesDiffer(float32(1.0000001), float32(1.0000002)) {
		t.Fatal("expected sub-epsilon float32 drift to compare equal")
	}
	if !valuesDiffer(float32(1.0), float32(1.1)) {
		t.Fatal("expected a real change to be detected")
	}
	if !valuesDiffer(int16(5), int16(7)) {
		t.Fatal("expected non-float values to fall back to plain inequality")
	}
	if valuesDiffer(int16(5), int16(5)) {
		t.Fatal("expected equal non-float values to compare equal")
	}
}
