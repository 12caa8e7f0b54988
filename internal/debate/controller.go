// Package debate runs the five-persona clinical debate over an assembled
// case: pathologist, radiologist, oncologist, chief synthesizer and the
// patient translator. Every stage holds the accelerator lease only for its
// own generation call, and every failure degrades to a deterministic
// template instead of propagating.
package debate

import (
	"context"

	"go.uber.org/zap"

	"aegis/internal/degrade"
	"aegis/internal/lease"
)

// Generator issues one bounded-length generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

const leaseName = "MedGemma"

// StageOutput is one persona's contribution in execution order.
type StageOutput struct {
	Stage   degrade.Stage `json:"stage"`
	Persona string        `json:"persona"`
	Output  string        `json:"output"`
}

// Result holds all five stage outputs. Skipped stages carry empty strings;
// the patient letter is never empty.
type Result struct {
	Pathologist   string        `json:"pathologist"`
	Radiologist   string        `json:"radiologist"`
	Oncologist    string        `json:"oncologist"`
	Synthesis     string        `json:"synthesis"`
	PatientLetter string        `json:"patient_letter"`
	Stages        []StageOutput `json:"all_stage_outputs"`
}

// Texts returns the non-empty stage outputs in execution order, for the
// citation aggregator.
func (r Result) Texts() []string {
	var out []string
	for _, s := range r.Stages {
		if s.Output != "" {
			out = append(out, s.Output)
		}
	}
	return out
}

// Controller sequences the debate stages.
type Controller struct {
	gen   Generator
	lease *lease.Manager
	log   *zap.Logger
}

// NewController wires the debate. gen may be nil: every stage then renders
// its deterministic template.
func NewController(gen Generator, mgr *lease.Manager, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{gen: gen, lease: mgr, log: log}
}

// Run executes the case's stage plan. The patient translation stage runs
// regardless of the plan; in the NO_DATA level the whole debate collapses to
// a single fixed message pair.
func (c *Controller) Run(ctx context.Context, oncocase *degrade.OncoCase) Result {
	if oncocase.Level == degrade.LevelNoData {
		return c.noDataResult()
	}

	pctx := promptContext{
		evidenceSummary:   formatEvidence(oncocase),
		clinicalFrame:     formatClinicalFrame(oncocase.Frame),
		txAnalysis:        formatTxAnalysis(oncocase.Tx),
		inventoryStatus:   formatInventory(oncocase.InventoryAlerts),
		nbaSection:        formatNBA(oncocase.NBAList),
		nbaPatient:        formatNBAPatient(oncocase.NBAList),
		stagingConfidence: oncocase.StagingConfidence,
		prior:             map[degrade.Stage]string{},
	}

	var res Result
	for _, persona := range Personas {
		always := persona.Stage == degrade.StagePatientTranslation
		if !always && !oncocase.Plan.Includes(persona.Stage) {
			res.Stages = append(res.Stages, StageOutput{Stage: persona.Stage, Persona: persona.Name})
			continue
		}

		output := c.runStage(ctx, persona, pctx, oncocase)
		pctx.prior[persona.Stage] = output
		res.Stages = append(res.Stages, StageOutput{
			Stage:   persona.Stage,
			Persona: persona.Name,
			Output:  output,
		})
	}

	for _, s := range res.Stages {
		switch s.Stage {
		case degrade.StagePathologist:
			res.Pathologist = s.Output
		case degrade.StageRadiologist:
			res.Radiologist = s.Output
		case degrade.StageOncologist:
			res.Oncologist = s.Output
		case degrade.StageSynthesis:
			res.Synthesis = s.Output
		case degrade.StagePatientTranslation:
			res.PatientLetter = s.Output
		}
	}
	return res
}

// runStage holds the lease only for the duration of one generation call and
// never returns an empty output for an executed stage.
func (c *Controller) runStage(ctx context.Context, persona Persona, pctx promptContext, oncocase *degrade.OncoCase) string {
	if c.gen == nil {
		return fallbackFor(persona.Stage, oncocase)
	}

	if c.lease != nil {
		handle, err := c.lease.Acquire(ctx, leaseName)
		if err != nil {
			c.log.Warn("debate stage lease acquire failed",
				zap.String("stage", string(persona.Stage)), zap.Error(err))
			return fallbackFor(persona.Stage, oncocase)
		}
		defer handle.Release()
	}

	out, err := c.gen.Generate(ctx, buildPrompt(persona.Stage, pctx), persona.Budget)
	if err != nil || out == "" {
		c.log.Warn("debate stage generation failed, using template",
			zap.String("stage", string(persona.Stage)), zap.Error(err))
		return fallbackFor(persona.Stage, oncocase)
	}
	return out
}

func (c *Controller) noDataResult() Result {
	stages := make([]StageOutput, len(Personas))
	for i, p := range Personas {
		stages[i] = StageOutput{Stage: p.Stage, Persona: p.Name}
	}
	stages[3].Output = noDataSynthesis
	stages[4].Output = noDataPatientLetter
	return Result{
		Synthesis:     noDataSynthesis,
		PatientLetter: noDataPatientLetter,
		Stages:        stages,
	}
}
