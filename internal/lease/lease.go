// Package lease serializes access to the single shared accelerator. Only one
// named holder may exist at any instant; every worker that loads a model must
// acquire the lease first and release it before the next stage begins.
package lease

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// EventFunc receives telemetry events such as "MedGemma_loaded". The holder
// argument is the active holder after the event ("None" once unloaded).
type EventFunc func(event, holder string)

// UsageFunc reports backend memory usage in MB (allocated, reserved). It is
// a seam for the accelerator runtime; the default reports zeros.
type UsageFunc func() (allocatedMB, reservedMB float64)

// Usage is a point-in-time record returned by Snapshot.
type Usage struct {
	Timestamp    time.Time `json:"timestamp"`
	Elapsed      float64   `json:"elapsed_s"`
	AllocatedMB  float64   `json:"allocated_mb"`
	ReservedMB   float64   `json:"reserved_mb"`
	ActiveHolder string    `json:"model_active"`
}

// Manager enforces strict sequential accelerator access. Acquire blocks on a
// single-permit semaphore; Release runs registered cleanup callbacks and
// returns the permit. The pipeline runs stages sequentially, but the
// single-holder invariant must also survive out-of-order callers.
type Manager struct {
	sem   *semaphore.Weighted
	event EventFunc
	usage UsageFunc
	log   *zap.Logger
	start time.Time

	mu       sync.Mutex
	holder   string
	cleanups []func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents installs the telemetry callback.
func WithEvents(fn EventFunc) Option { return func(m *Manager) { m.event = fn } }

// WithUsage installs the memory usage probe.
func WithUsage(fn UsageFunc) Option { return func(m *Manager) { m.usage = fn } }

// NewManager returns a lease manager with one permit.
func NewManager(log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		sem:   semaphore.NewWeighted(1),
		log:   log,
		start: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle is a scoped acquisition guard. Release is idempotent and must run on
// every exit path of the holding stage.
type Handle struct {
	m    *Manager
	once sync.Once
}

// Release gives the lease back. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil || h.m == nil {
		return
	}
	h.once.Do(func() { h.m.Release() })
}

// Acquire blocks until the lease is free, marks name as the sole holder and
// emits a "<name>_loaded" event. If a previous holder is still marked active
// once the permit is obtained, it is force-released first: availability is
// favored over strict misuse detection.
func (m *Manager) Acquire(ctx context.Context, name string) (*Handle, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.holder != "" {
		prev := m.holder
		m.log.Warn("lease still marked held on acquire, force-releasing",
			zap.String("previous", prev), zap.String("next", name))
		m.drainLocked()
		m.emit(prev+"_unloaded", "None")
	}
	m.holder = name
	m.mu.Unlock()

	m.log.Info("lease acquired", zap.String("holder", name), zap.Float64("elapsed_s", m.elapsed()))
	m.emit(name+"_loaded", name)
	return &Handle{m: m}, nil
}

// RegisterCleanup attaches disposables to the current holder. They run, in
// registration order, when the lease is released.
func (m *Manager) RegisterCleanup(fns ...func()) {
	m.mu.Lock()
	m.cleanups = append(m.cleanups, fns...)
	m.mu.Unlock()
}

// Release runs cleanup callbacks for the current holder, clears holder state,
// emits "<name>_unloaded" and returns the permit. Calling Release with no
// active holder logs a warning and is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.holder == "" {
		m.mu.Unlock()
		m.log.Warn("lease release called with no active holder")
		return
	}
	name := m.holder
	m.drainLocked()
	m.mu.Unlock()

	m.log.Info("lease released", zap.String("holder", name), zap.Float64("elapsed_s", m.elapsed()))
	m.emit(name+"_unloaded", "None")
	m.sem.Release(1)
}

// Holder returns the current holder name, or "" when the lease is free.
func (m *Manager) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// Snapshot returns a point-in-time usage record independent of
// acquire/release activity.
func (m *Manager) Snapshot() Usage {
	var alloc, reserved float64
	if m.usage != nil {
		alloc, reserved = m.usage()
	}
	holder := m.Holder()
	if holder == "" {
		holder = "None"
	}
	return Usage{
		Timestamp:    time.Now(),
		Elapsed:      m.elapsed(),
		AllocatedMB:  alloc,
		ReservedMB:   reserved,
		ActiveHolder: holder,
	}
}

// drainLocked runs and clears cleanup callbacks and holder state. Caller
// holds m.mu.
func (m *Manager) drainLocked() {
	for _, fn := range m.cleanups {
		if fn != nil {
			fn()
		}
	}
	m.cleanups = nil
	m.holder = ""
}

func (m *Manager) emit(event, holder string) {
	if m.event != nil {
		m.event(event, holder)
	}
}

func (m *Manager) elapsed() float64 { return time.Since(m.start).Seconds() }
