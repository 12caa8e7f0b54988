// Package pipeline runs the full analysis pipeline over a session: every
// phase executes in a fixed order, failures are isolated per phase, and the
// session always reaches COMPLETED with whatever evidence survived.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"aegis/internal/debate"
	"aegis/internal/degrade"
	"aegis/internal/escalate"
	"aegis/internal/evidence"
	"aegis/internal/extract"
	"aegis/internal/lease"
	"aegis/internal/pharma"
	"aegis/internal/retrieval"
	"aegis/internal/risk"
	"aegis/internal/session"
	"aegis/internal/trace"
	"aegis/internal/workers"
)

// Phase names, in execution order. Progress consumers key on these.
const (
	PhaseTranscription    = "transcription"
	PhaseEntityExtraction = "entity_extraction"
	PhaseEscalation       = "escalation"
	PhaseCoughAnalysis    = "cough_analysis"
	PhasePathology        = "pathology"
	PhaseRadiograph       = "radiograph"
	PhaseDermatology      = "dermatology"
	PhaseSimilarity       = "similarity_retrieval"
	PhaseRiskScoring      = "risk_scoring"
	PhaseCaseAssembly     = "case_assembly"
	PhaseDrugInteraction  = "drug_interaction"
	PhaseDebate           = "persona_debate"
	PhaseCitations        = "citation_aggregation"
)

// Phases lists every phase in order.
var Phases = []string{
	PhaseTranscription,
	PhaseEntityExtraction,
	PhaseEscalation,
	PhaseCoughAnalysis,
	PhasePathology,
	PhaseRadiograph,
	PhaseDermatology,
	PhaseSimilarity,
	PhaseRiskScoring,
	PhaseCaseAssembly,
	PhaseDrugInteraction,
	PhaseDebate,
	PhaseCitations,
}

// ProgressFunc is called after every phase, including failed ones.
type ProgressFunc func(phase string, completed, total int)

// Config wires the orchestrator's collaborators. Nil backends are allowed
// everywhere; the affected stages fall back to their deterministic paths.
type Config struct {
	Lease     *lease.Manager
	Catalog   degrade.Catalog
	Retriever *retrieval.Retriever
	Inventory pharma.Inventory
	PharmaGen pharma.Generator
	DebateGen debate.Generator
	Log       *zap.Logger
	OnPhase   ProgressFunc
}

// Orchestrator executes the phase sequence for one session at a time.
type Orchestrator struct {
	cfg Config
	log *zap.Logger
}

// New builds an orchestrator. A nil catalog falls back to the embedded
// default and a nil retriever to reference-case retrieval.
func New(cfg Config) *Orchestrator {
	if cfg.Catalog == nil {
		cfg.Catalog = degrade.DefaultCatalog()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Retriever == nil {
		cfg.Retriever = retrieval.NewRetriever(nil, nil, cfg.Log)
	}
	return &Orchestrator{cfg: cfg, log: cfg.Log}
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes every phase against the session. A phase error is recorded on
// the session and replaced with that phase's safe default; the next phase
// always runs. The session finishes COMPLETED unconditionally.
func (o *Orchestrator) Run(ctx context.Context, s *session.Session) *session.Session {
	s.Status = session.StatusRunning

	phases := []phase{
		{PhaseTranscription, func(ctx context.Context) error { return o.runTranscription(ctx, s) }},
		{PhaseEntityExtraction, func(ctx context.Context) error { return o.runExtraction(s) }},
		{PhaseEscalation, func(ctx context.Context) error { return o.runEscalation(s) }},
		{PhaseCoughAnalysis, func(ctx context.Context) error { return o.runCough(ctx, s) }},
		{PhasePathology, func(ctx context.Context) error { return o.runImage(ctx, s, PhasePathology) }},
		{PhaseRadiograph, func(ctx context.Context) error { return o.runImage(ctx, s, PhaseRadiograph) }},
		{PhaseDermatology, func(ctx context.Context) error { return o.runImage(ctx, s, PhaseDermatology) }},
		{PhaseSimilarity, func(ctx context.Context) error { return o.runSimilarity(ctx, s) }},
		{PhaseRiskScoring, func(ctx context.Context) error { return o.runRisk(s) }},
		{PhaseCaseAssembly, func(ctx context.Context) error { return o.runAssembly(s) }},
		{PhaseDrugInteraction, func(ctx context.Context) error { return o.runPharma(ctx, s) }},
		{PhaseDebate, func(ctx context.Context) error { return o.runDebate(ctx, s) }},
		{PhaseCitations, func(ctx context.Context) error { return o.runTrace(s) }},
	}

	for i, p := range phases {
		if err := p.run(ctx); err != nil {
			o.log.Warn("phase failed, continuing with defaults",
				zap.String("phase", p.name),
				zap.String("session", s.SessionID),
				zap.Error(err))
			s.AddError(p.name, err)
		}
		s.MarkPhase(p.name)
		if o.cfg.OnPhase != nil {
			o.cfg.OnPhase(p.name, i+1, len(phases))
		}
	}

	s.Status = session.StatusCompleted
	return s
}

func (o *Orchestrator) runTranscription(ctx context.Context, s *session.Session) error {
	w := &workers.ASRWorker{AudioPath: s.Inputs.AudioPath, Lease: o.cfg.Lease, Catalog: o.cfg.Catalog, Log: o.log}
	res, err := w.Run(ctx)
	if err != nil {
		s.ConfidenceFlags = []string{"ASR_ERROR"}
		return err
	}
	s.Transcript = res.Transcript
	s.ConfidenceFlags = res.ConfidenceFlags
	s.Pool = append(s.Pool, res.Item)
	return nil
}

func (o *Orchestrator) runExtraction(s *session.Session) error {
	s.Frame = extract.Frame(s.Transcript)
	return nil
}

func (o *Orchestrator) runEscalation(s *session.Session) error {
	transcriptionMissing := true
	if item, ok := evidence.BySource(s.Pool, evidence.SourceTranscript); ok {
		transcriptionMissing = !item.OK()
	}
	s.Escalation = escalate.Evaluate(s.Frame, transcriptionMissing)
	return nil
}

func (o *Orchestrator) runCough(ctx context.Context, s *session.Session) error {
	// The consultation recording doubles as the cough sample when no
	// dedicated clip was uploaded.
	coughPath := s.Inputs.CoughPath
	if coughPath == "" {
		coughPath = s.Inputs.AudioPath
	}
	w := &workers.HeARWorker{CoughPath: coughPath, Lease: o.cfg.Lease, Catalog: o.cfg.Catalog, Log: o.log}
	res, err := w.Run(ctx)
	if err != nil {
		s.Pool = append(s.Pool, evidence.Missing(evidence.ModalityCough, evidence.SourceHeAR, workers.RemediationFor(o.cfg.Catalog, evidence.SourceHeAR)))
		return err
	}
	s.Pool = append(s.Pool, res.Item)
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, s *session.Session, name string) error {
	var w *workers.ImageWorker
	switch name {
	case PhasePathology:
		w = workers.NewPathWorker(s.Inputs.PathPath, o.cfg.Lease, o.cfg.Catalog, o.log)
	case PhaseRadiograph:
		w = workers.NewCXRWorker(s.Inputs.CXRPath, o.cfg.Lease, o.cfg.Catalog, o.log)
	case PhaseDermatology:
		w = workers.NewDermWorker(s.Inputs.DermPath, o.cfg.Lease, o.cfg.Catalog, o.log)
	}
	res, err := w.Run(ctx)
	if err != nil {
		s.Pool = append(s.Pool, evidence.Missing(w.Modality(), sourceForPhase(name), workers.RemediationFor(o.cfg.Catalog, sourceForPhase(name))))
		return err
	}
	s.Pool = append(s.Pool, res.Item)
	return nil
}

func (o *Orchestrator) runSimilarity(ctx context.Context, s *session.Session) error {
	res := o.cfg.Retriever.Retrieve(ctx, s.Frame.Searchable())
	s.SimilarCases = res.Cases
	s.Pool = append(s.Pool, res.Evidence)
	return nil
}

func (o *Orchestrator) runRisk(s *session.Session) error {
	s.Risk = risk.Compute(s.Frame, s.Pool, s.ConfidenceFlags)
	return nil
}

func (o *Orchestrator) runAssembly(s *session.Session) error {
	s.Case = degrade.NewBuilder(o.cfg.Catalog).Build(s.SessionID, s.Frame, s.Pool, s.Risk, s.SimilarCases)
	return nil
}

func (o *Orchestrator) runPharma(ctx context.Context, s *session.Session) error {
	if s.Case == nil {
		return nil
	}
	analyzer := pharma.NewAnalyzer(o.cfg.PharmaGen, o.cfg.Lease, o.cfg.Inventory, o.log)
	tx := analyzer.Analyze(ctx, s.Case.PharmaInput())
	s.Tx = tx
	s.Case.AttachAnalysis(tx)
	s.Pool = append(s.Pool, tx.Evidence)
	return nil
}

func (o *Orchestrator) runDebate(ctx context.Context, s *session.Session) error {
	if s.Case == nil {
		return nil
	}
	res := debate.NewController(o.cfg.DebateGen, o.cfg.Lease, o.log).Run(ctx, s.Case)
	s.Debate = &res
	return nil
}

func (o *Orchestrator) runTrace(s *session.Session) error {
	in := trace.Input{
		Pool:         s.Pool,
		Tx:           s.Tx,
		Transcript:   s.Transcript,
		Frame:        s.Frame,
		SimilarCases: s.SimilarCases,
	}
	if s.Debate != nil {
		in.DebateTexts = s.Debate.Texts()
	}
	s.Trace = trace.Build(in)
	return nil
}

func sourceForPhase(name string) evidence.SourceID {
	switch name {
	case PhasePathology:
		return evidence.SourcePathFoundation
	case PhaseRadiograph:
		return evidence.SourceCXRFoundation
	default:
		return evidence.SourceDermFoundation
	}
}
