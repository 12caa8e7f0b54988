// Package evidence defines the shared data contracts of the analysis
// pipeline: the per-modality evidence items produced by workers, the clinical
// frame extracted from the consultation transcript, and the canonical source
// registry used by citation tagging.
package evidence

// Status reports how a modality worker concluded.
type Status string

const (
	StatusOK            Status = "OK"
	StatusMissingData   Status = "MISSING_DATA"
	StatusBlocked       Status = "BLOCKED"
	StatusLowConfidence Status = "LOW_CONFIDENCE"
)

// Modality identifies the kind of clinical input an item was derived from.
type Modality string

const (
	ModalityAudio           Modality = "audio"
	ModalityCough           Modality = "cough"
	ModalityCXR             Modality = "cxr"
	ModalityHistopathology  Modality = "histopathology"
	ModalityDerm            Modality = "derm"
	ModalityDrugInteraction Modality = "drug_interaction"
	ModalityMultimodal      Modality = "multimodal"
)

// CoreModalities is the fixed universe counted by the degradation engine.
// Drug interaction and multimodal retrieval are derived stages and do not
// count toward the missing-data total.
var CoreModalities = []Modality{
	ModalityAudio,
	ModalityCough,
	ModalityCXR,
	ModalityHistopathology,
	ModalityDerm,
}

// Core reports whether the modality counts toward the missing-data total.
func (m Modality) Core() bool {
	for _, c := range CoreModalities {
		if m == c {
			return true
		}
	}
	return false
}

// SourceID is a canonical model identifier used as the citation vocabulary.
type SourceID string

const (
	SourcePathFoundation SourceID = "Path_Foundation"
	SourceCXRFoundation  SourceID = "CXR_Foundation"
	SourceDermFoundation SourceID = "Derm_Foundation"
	SourceHeAR           SourceID = "HeAR"
	SourceTxGemma        SourceID = "TxGemma"
	SourceInventory      SourceID = "Local_Inventory_JSON"
	SourceCaseLibrary    SourceID = "MedSigLIP_CaseLibrary"
	SourceTranscript     SourceID = "MedASR_Transcript"
	SourceClinicalFrame  SourceID = "Clinical_Frame_JSON"
)

// CanonicalSources lists every identifier the citation trace may key on.
var CanonicalSources = []SourceID{
	SourcePathFoundation,
	SourceCXRFoundation,
	SourceDermFoundation,
	SourceHeAR,
	SourceTxGemma,
	SourceInventory,
	SourceCaseLibrary,
	SourceTranscript,
	SourceClinicalFrame,
}

// sourceAliases maps legacy or tagging-time identifiers to canonical ones.
var sourceAliases = map[SourceID]SourceID{
	"TxGemma_DDI":     SourceTxGemma,
	"MedASR":          SourceTranscript,
	"MedSigLIP":       SourceCaseLibrary,
	"Clinical_Frame":  SourceClinicalFrame,
	"Local_Inventory": SourceInventory,
}

// Canonical resolves an identifier through the alias table. Unknown names
// pass through unchanged so unexpected tags remain visible in the trace.
func Canonical(id SourceID) SourceID {
	if c, ok := sourceAliases[id]; ok {
		return c
	}
	return id
}

// Item is one finding from one analysis stage. Items are created once by
// their worker, appended to the session pool and never mutated afterwards.
type Item struct {
	Modality       Modality `json:"modality"`
	Source         SourceID `json:"source_id"`
	Status         Status   `json:"status"`
	Finding        string   `json:"finding,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	NextBestAction string    `json:"next_best_action,omitempty"`
}

// OK reports whether the item carries a usable finding.
func (it Item) OK() bool { return it.Status == StatusOK }

// Missing constructs a MISSING_DATA item. The remediation text is mandatory
// per the worker contract.
func Missing(mod Modality, src SourceID, nextBestAction string) Item {
	return Item{
		Modality:       mod,
		Source:         src,
		Status:         StatusMissingData,
		NextBestAction: nextBestAction,
	}
}

// Conf is a convenience for the optional confidence field.
func Conf(v float64) *float64 { return &v }

// MissingCount counts MISSING_DATA items from core modalities. Derived
// stages never count toward degradation.
func MissingCount(pool []Item) int {
	n := 0
	for _, it := range pool {
		if it.Status == StatusMissingData && it.Modality.Core() {
			n++
		}
	}
	return n
}

// BySource returns the first item produced by the given canonical source.
func BySource(pool []Item, src SourceID) (Item, bool) {
	for _, it := range pool {
		if Canonical(it.Source) == Canonical(src) {
			return it, true
		}
	}
	return Item{}, false
}
