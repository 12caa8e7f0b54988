package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"aegis/internal/tester"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) record(event, _ string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func TestAcquireReleaseTelemetryOrder(t *testing.T) {
	ev := &eventLog{}
	m := NewManager(zap.NewNop(), WithEvents(ev.record))

	h, err := m.Acquire(context.Background(), "MedASR")
	tester.NoErr(t, err)
	tester.Eq(t, m.Holder(), "MedASR")
	h.Release()
	tester.Eq(t, m.Holder(), "")
	tester.Eq(t, ev.list(), []string{"MedASR_loaded", "MedASR_unloaded"})
}

func TestSecondAcquireBlocksUntilRelease(t *testing.T) {
	ev := &eventLog{}
	m := NewManager(zap.NewNop(), WithEvents(ev.record))

	h1, err := m.Acquire(context.Background(), "HeAR")
	tester.NoErr(t, err)

	acquired := make(chan struct{})
	go func() {
		h2, err := m.Acquire(context.Background(), "TxGemma")
		if err == nil {
			close(acquired)
			h2.Release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lease was held")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}

	// Release telemetry of the first holder happens-before the load
	// telemetry of the second; the two holds never overlap.
	want := []string{"HeAR_loaded", "HeAR_unloaded", "TxGemma_loaded", "TxGemma_unloaded"}
	tester.Eq(t, ev.list(), want)
}

func TestForceReleaseOfStaleHolder(t *testing.T) {
	ev := &eventLog{}
	m := NewManager(zap.NewNop(), WithEvents(ev.record))

	// Simulate misuse: holder state left behind while the permit is free.
	m.mu.Lock()
	m.holder = "Ghost"
	m.mu.Unlock()

	h, err := m.Acquire(context.Background(), "CXRFoundation")
	tester.NoErr(t, err)
	defer h.Release()

	tester.Eq(t, ev.list(), []string{"Ghost_unloaded", "CXRFoundation_loaded"})
	tester.Eq(t, m.Holder(), "CXRFoundation")
}

func TestReleaseWithoutHolderIsNoOp(t *testing.T) {
	ev := &eventLog{}
	m := NewManager(zap.NewNop(), WithEvents(ev.record))

	m.Release()
	tester.Eq(t, len(ev.list()), 0)

	// Lease must still be acquirable afterwards.
	h, err := m.Acquire(context.Background(), "DermFoundation")
	tester.NoErr(t, err)
	h.Release()
}

func TestHandleReleaseIdempotent(t *testing.T) {
	ev := &eventLog{}
	m := NewManager(zap.NewNop(), WithEvents(ev.record))

	h, err := m.Acquire(context.Background(), "PathFoundation")
	tester.NoErr(t, err)
	h.Release()
	h.Release()
	tester.Eq(t, ev.list(), []string{"PathFoundation_loaded", "PathFoundation_unloaded"})
}

func TestCleanupCallbacksRunOnRelease(t *testing.T) {
	m := NewManager(zap.NewNop())
	h, err := m.Acquire(context.Background(), "MedGemma")
	tester.NoErr(t, err)

	var order []int
	m.RegisterCleanup(func() { order = append(order, 1) }, func() { order = append(order, 2) })
	h.Release()
	tester.Eq(t, order, []int{1, 2})

	// Cleanups do not leak into the next hold.
	h2, err := m.Acquire(context.Background(), "MedGemma")
	tester.NoErr(t, err)
	h2.Release()
	tester.Eq(t, order, []int{1, 2})
}

func TestSnapshotReportsHolder(t *testing.T) {
	m := NewManager(zap.NewNop(), WithUsage(func() (float64, float64) { return 2800, 4096 }))

	snap := m.Snapshot()
	tester.Eq(t, snap.ActiveHolder, "None")
	tester.Eq(t, snap.AllocatedMB, 2800.0)

	h, err := m.Acquire(context.Background(), "MedGemma")
	tester.NoErr(t, err)
	defer h.Release()
	tester.Eq(t, m.Snapshot().ActiveHolder, "MedGemma")
}
