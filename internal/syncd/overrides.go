// Package syncd stores anonymized clinician override records and syncs them
// to the remote tumor board when connectivity allows. The store is an
// append-only JSONL audit trail; patient-linked identifiers are hashed
// before they touch disk.
package syncd

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"aegis/internal/safeio"
)

const (
	overrideLogName = "override_log.jsonl"
	syncedLogName   = "synced_records.jsonl"

	StatusPending = "PENDING"
	StatusSynced  = "SYNCED"
)

// Record is one clinician override. The session hash is the only link back
// to the originating session.
type Record struct {
	RecordID      string  `json:"record_id"`
	Timestamp     float64 `json:"timestamp"`
	TimestampISO  string  `json:"timestamp_iso"`
	SessionHash   string  `json:"session_hash"`
	Field         string  `json:"field"`
	OriginalValue string  `json:"original_value"`
	NewValue      string  `json:"new_value"`
	ClinicianNote string  `json:"clinician_note"`
	SyncStatus    string  `json:"sync_status"`
	SyncedAt      float64 `json:"synced_at,omitempty"`
}

// Anonymize hashes an identifier to a 16-hex-character prefix.
func Anonymize(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

// Store is the local override log, confined to one directory.
type Store struct {
	fs *safeio.SafeFS
}

// NewStore opens (creating if necessary) the override log directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("syncd: create log dir: %w", err)
	}
	fsys, err := safeio.NewSafeFS(dir)
	if err != nil {
		return nil, fmt.Errorf("syncd: open log dir: %w", err)
	}
	return &Store{fs: fsys}, nil
}

// LogOverride appends a PENDING record with an anonymized session hash.
func (s *Store) LogOverride(sessionID, clinicianNote, field, originalValue, newValue string) (Record, error) {
	now := time.Now()
	rec := Record{
		RecordID:      uuid.NewString()[:12],
		Timestamp:     float64(now.UnixNano()) / 1e9,
		TimestampISO:  now.Format("2006-01-02T15:04:05Z0700"),
		SessionHash:   Anonymize(sessionID),
		Field:         field,
		OriginalValue: originalValue,
		NewValue:      newValue,
		ClinicianNote: clinicianNote,
		SyncStatus:    StatusPending,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("syncd: marshal record: %w", err)
	}
	if err := s.fs.AppendFile(overrideLogName, append(line, '\n'), 0o644); err != nil {
		return Record{}, fmt.Errorf("syncd: append record: %w", err)
	}
	return rec, nil
}

// Pending returns every record still awaiting sync. Malformed lines are
// skipped; they stay in the file untouched.
func (s *Store) Pending() ([]Record, error) {
	records, _, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var pending []Record
	for _, rec := range records {
		if rec.SyncStatus == StatusPending {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

// MarkSynced flips the given records to SYNCED by rewriting the whole log
// atomically. Malformed lines are preserved verbatim.
func (s *Store) MarkSynced(recordIDs []string) error {
	records, raw, err := s.readAll()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	ids := map[string]bool{}
	for _, id := range recordIDs {
		ids[id] = true
	}

	recIdx := 0
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		var probe Record
		if json.Unmarshal([]byte(line), &probe) != nil {
			lines = append(lines, line)
			continue
		}
		rec := records[recIdx]
		recIdx++
		if ids[rec.RecordID] {
			rec.SyncStatus = StatusSynced
			rec.SyncedAt = float64(time.Now().UnixNano()) / 1e9
		}
		updated, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("syncd: marshal record: %w", err)
		}
		lines = append(lines, string(updated))
	}

	data := strings.Join(lines, "\n") + "\n"
	return s.fs.WriteFileAtomic(overrideLogName, []byte(data), 0o644)
}

// Stats summarizes the log.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
}

// OverrideStats counts records per sync status.
func (s *Store) OverrideStats() (Stats, error) {
	records, _, err := s.readAll()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(records)}
	for _, rec := range records {
		switch rec.SyncStatus {
		case StatusPending:
			st.Pending++
		case StatusSynced:
			st.Synced++
		}
	}
	return st, nil
}

// readAll returns the parsed records plus every raw non-empty line, so the
// rewrite path can carry malformed lines through unchanged.
func (s *Store) readAll() ([]Record, []string, error) {
	f, err := s.fs.SafeOpen(overrideLogName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("syncd: read log: %w", err)
	}
	defer f.Close()

	var records []Record
	var raw []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		raw = append(raw, line)
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("syncd: read log: %w", err)
	}
	return records, raw, nil
}
