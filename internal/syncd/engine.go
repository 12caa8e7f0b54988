package syncd

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Endpoint receives anonymized override records. The board-directory
// implementation stands in for the remote tumor board in offline clinics.
type Endpoint interface {
	Upload(records []Record) error
}

// BoardDir is the local mock endpoint: synced records are appended to a
// JSONL file in the store directory for later manual transfer.
type BoardDir struct {
	store *Store
}

// NewBoardDir wires the mock endpoint onto the store's directory.
func NewBoardDir(store *Store) *BoardDir { return &BoardDir{store: store} }

func (b *BoardDir) Upload(records []Record) error {
	now := float64(time.Now().UnixNano()) / 1e9
	for _, rec := range records {
		rec.SyncStatus = StatusSynced
		rec.SyncedAt = now
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("syncd: marshal synced record: %w", err)
		}
		if err := b.store.fs.AppendFile(syncedLogName, append(line, '\n'), 0o644); err != nil {
			return fmt.Errorf("syncd: upload record: %w", err)
		}
	}
	return nil
}

// Sync attempt statuses.
const (
	SyncSuccess   = "SUCCESS"
	SyncNoPending = "NO_PENDING"
	SyncError     = "ERROR"
	SyncBusy      = "BUSY"
)

// SyncResult reports one sync attempt.
type SyncResult struct {
	Synced int    `json:"synced"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// EngineStatus is a point-in-time view of the engine.
type EngineStatus struct {
	Running      bool       `json:"running"`
	SyncCount    int        `json:"sync_count"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Errors       int        `json:"errors"`
}

// Engine periodically uploads pending override records. At most one sync
// attempt runs at a time: if an attempt is still in flight when the ticker
// fires, the tick is skipped.
type Engine struct {
	store    *Store
	endpoint Endpoint
	interval time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	syncing   bool
	running   bool
	syncCount int
	lastSync  *time.Time
	errCount  int

	stop chan struct{}
	done chan struct{}
}

// NewEngine builds a sync engine. A nil endpoint falls back to the local
// board directory.
func NewEngine(store *Store, endpoint Endpoint, interval time.Duration, log *zap.Logger) *Engine {
	if endpoint == nil {
		endpoint = NewBoardDir(store)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, endpoint: endpoint, interval: interval, log: log}
}

// Start launches the background loop. Calling Start on a running engine is
// a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)
}

// Stop shuts the loop down and waits for any in-flight attempt to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
}

func (e *Engine) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			res := e.AttemptSync()
			if res.Status == SyncError {
				e.log.Warn("sync attempt failed", zap.String("error", res.Error))
			}
		}
	}
}

// AttemptSync uploads all pending records and marks them SYNCED. It returns
// immediately with a BUSY result if another attempt is in flight.
func (e *Engine) AttemptSync() SyncResult {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return SyncResult{Status: SyncBusy}
	}
	e.syncing = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	pending, err := e.store.Pending()
	if err != nil {
		return e.fail(err)
	}
	if len(pending) == 0 {
		return SyncResult{Status: SyncNoPending}
	}

	if err := e.endpoint.Upload(pending); err != nil {
		return e.fail(err)
	}

	ids := make([]string, len(pending))
	for i, rec := range pending {
		ids[i] = rec.RecordID
	}
	if err := e.store.MarkSynced(ids); err != nil {
		return e.fail(err)
	}

	now := time.Now()
	e.mu.Lock()
	e.syncCount += len(pending)
	e.lastSync = &now
	e.mu.Unlock()

	return SyncResult{Synced: len(pending), Status: SyncSuccess}
}

func (e *Engine) fail(err error) SyncResult {
	e.mu.Lock()
	e.errCount++
	e.mu.Unlock()
	return SyncResult{Status: SyncError, Error: err.Error()}
}

// Status snapshots the engine state.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStatus{
		Running:      e.running,
		SyncCount:    e.syncCount,
		LastSyncTime: e.lastSync,
		Errors:       e.errCount,
	}
}
