// Package workers holds the per-modality analysis workers. Every worker
// follows the same contract: when its input file is absent it returns a
// MISSING_DATA item carrying the catalog remediation text and never touches
// the accelerator lease; otherwise it acquires the lease under its model
// name, produces an OK item, and releases the lease before returning.
package workers

import (
	"context"
	"crypto/sha256"
	"os"
	"unicode/utf8"

	"aegis/internal/degrade"
	"aegis/internal/evidence"
	"aegis/internal/lease"
)

// Worker produces one evidence item for a single modality.
type Worker interface {
	Modality() evidence.Modality
	Run(ctx context.Context) (Result, error)
}

// Result bundles the evidence item with modality-specific extras. Transcript
// and ConfidenceFlags are populated by the transcription worker only;
// TBScore by the cough worker only.
type Result struct {
	Item            evidence.Item
	Transcript      string
	ConfidenceFlags []string
	TBScore         *float64
}

const embeddingDim = 128

// inputExists treats an empty path the same as a missing file.
func inputExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// RemediationFor looks up the catalog remediation for a source. Workers must
// never emit a MISSING_DATA item without a next best action, so an absent
// catalog entry falls back to a generic upload prompt.
func RemediationFor(catalog degrade.Catalog, src evidence.SourceID) string {
	if entry, ok := catalog[evidence.Canonical(src)]; ok && entry.Action != "" {
		return entry.Action
	}
	return "Input unavailable. Upload the missing data and re-run the analysis."
}

// encodeBytes derives a deterministic embedding from raw input bytes. The
// on-device foundation models are out of scope here; the digest-based stub
// keeps downstream ranking and finding tiers reproducible across runs.
func encodeBytes(data []byte) []float32 {
	digest := sha256.Sum256(data)
	emb := make([]float32, embeddingDim)
	for i := range emb {
		emb[i] = float32(digest[i%len(digest)]) / 255 * 0.2
	}
	return emb
}

// meanAbs averages the magnitude of the first n values.
func meanAbs(emb []float32, n int) float64 {
	if len(emb) < n {
		n = len(emb)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range emb[:n] {
		if v < 0 {
			v = -v
		}
		sum += float64(v)
	}
	return sum / float64(n)
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Never split a multi-byte rune at the cut.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// withLease runs fn while holding the accelerator lease under the given
// model name.
func withLease(ctx context.Context, mgr *lease.Manager, model string, fn func() (Result, error)) (Result, error) {
	if mgr == nil {
		return fn()
	}
	handle, err := mgr.Acquire(ctx, model)
	if err != nil {
		return Result{}, err
	}
	defer handle.Release()
	return fn()
}
