package workers

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"aegis/internal/degrade"
	"aegis/internal/evidence"
	"aegis/internal/lease"
)

// findingTiers maps embedding magnitude onto a finding sentence. High and
// mid thresholds split the three tiers.
type findingTiers struct {
	high, mid         float64
	highText, midText string
	lowText           string
}

func (t findingTiers) finding(meanVal float64) string {
	switch {
	case meanVal > t.high:
		return t.highText
	case meanVal > t.mid:
		return t.midText
	default:
		return t.lowText
	}
}

// ImageWorker runs one of the image foundation encoders. The three imaging
// modalities differ only in model name, confidence and finding tiers.
type ImageWorker struct {
	ImagePath string
	Lease     *lease.Manager
	Catalog   degrade.Catalog
	Log       *zap.Logger

	modality   evidence.Modality
	source     evidence.SourceID
	model      string
	confidence float64
	tiers      findingTiers
}

// NewCXRWorker analyses a chest radiograph.
func NewCXRWorker(imagePath string, mgr *lease.Manager, catalog degrade.Catalog, log *zap.Logger) *ImageWorker {
	return &ImageWorker{
		ImagePath:  imagePath,
		Lease:      mgr,
		Catalog:    catalog,
		Log:        log,
		modality:   evidence.ModalityCXR,
		source:     evidence.SourceCXRFoundation,
		model:      "CXR_Foundation",
		confidence: 0.85,
		tiers: findingTiers{
			high:     0.15,
			mid:      0.08,
			highText: "Bilateral infiltrates suggestive of pulmonary involvement. Mediastinal widening noted.",
			midText:  "Right upper lobe opacity. Consider TB vs pneumonia. Hilar lymphadenopathy present.",
			lowText:  "No acute cardiopulmonary process. Clear lung fields bilaterally.",
		},
	}
}

// NewPathWorker analyses a histopathology slide image.
func NewPathWorker(imagePath string, mgr *lease.Manager, catalog degrade.Catalog, log *zap.Logger) *ImageWorker {
	return &ImageWorker{
		ImagePath:  imagePath,
		Lease:      mgr,
		Catalog:    catalog,
		Log:        log,
		modality:   evidence.ModalityHistopathology,
		source:     evidence.SourcePathFoundation,
		model:      "Path_Foundation",
		confidence: 0.88,
		tiers: findingTiers{
			high:     0.12,
			mid:      0.06,
			highText: "High-grade B-cell lymphoma with diffuse large cell morphology. Ki-67 > 80%.",
			midText:  "Atypical lymphoid proliferation. Consider flow cytometry for definitive classification.",
			lowText:  "Reactive lymphoid hyperplasia. No evidence of malignancy in sampled tissue.",
		},
	}
}

// NewDermWorker analyses a skin lesion photograph.
func NewDermWorker(imagePath string, mgr *lease.Manager, catalog degrade.Catalog, log *zap.Logger) *ImageWorker {
	return &ImageWorker{
		ImagePath:  imagePath,
		Lease:      mgr,
		Catalog:    catalog,
		Log:        log,
		modality:   evidence.ModalityDerm,
		source:     evidence.SourceDermFoundation,
		model:      "Derm_Foundation",
		confidence: 0.82,
		tiers: findingTiers{
			high:     0.12,
			mid:      0.06,
			highText: "Violaceous papular lesion with vascular pattern suspicious for Kaposi sarcoma.",
			midText:  "Pigmented lesion with irregular borders. Dermoscopy recommended.",
			lowText:  "Benign-appearing lesion. No features of concern.",
		},
	}
}

func (w *ImageWorker) Modality() evidence.Modality { return w.modality }

func (w *ImageWorker) Run(ctx context.Context) (Result, error) {
	if !inputExists(w.ImagePath) {
		return Result{
			Item: evidence.Missing(w.modality, w.source, RemediationFor(w.Catalog, w.source)),
		}, nil
	}

	return withLease(ctx, w.Lease, w.model, func() (Result, error) {
		data, err := os.ReadFile(w.ImagePath)
		if err != nil {
			return Result{}, fmt.Errorf("workers: read %s image: %w", w.modality, err)
		}

		emb := encodeBytes(data)
		return Result{
			Item: evidence.Item{
				Modality:   w.modality,
				Source:     w.source,
				Status:     evidence.StatusOK,
				Finding:    w.tiers.finding(meanAbs(emb, 100)),
				Confidence: evidence.Conf(w.confidence),
				Embedding:  emb,
			},
		}, nil
	})
}
