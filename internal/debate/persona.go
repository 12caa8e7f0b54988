package debate

import (
	"fmt"
	"strings"

	"aegis/internal/degrade"
)

// citationRule is injected into every persona prompt. The tag vocabulary
// must stay in lockstep with the canonical source registry.
const citationRule = `CITATION RULE: You MUST cite the source of every clinical claim using this exact format:
[Source: MODEL_NAME] where MODEL_NAME is one of:
  Path_Foundation, CXR_Foundation, Derm_Foundation, HeAR, TxGemma,
  Local_Inventory_JSON, MedSigLIP_CaseLibrary, MedASR_Transcript, Clinical_Frame_JSON

Example: "The bilateral infiltrates [Source: CXR_Foundation] combined with the high TB
cough score [Source: HeAR] suggest pulmonary involvement."

Do NOT make any clinical claim without a [Source: X] tag. If unsure of source, use
[Source: Clinical_Frame_JSON].`

// Persona describes one debate stage.
type Persona struct {
	Stage  degrade.Stage
	Name   string
	Budget int
}

// Personas is the debate in execution order with per-stage token budgets.
var Personas = []Persona{
	{Stage: degrade.StagePathologist, Name: "Virtual Pathologist", Budget: 200},
	{Stage: degrade.StageRadiologist, Name: "Virtual Radiologist", Budget: 200},
	{Stage: degrade.StageOncologist, Name: "Virtual Oncologist", Budget: 200},
	{Stage: degrade.StageSynthesis, Name: "Chief Physician Synthesizer", Budget: 600},
	{Stage: degrade.StagePatientTranslation, Name: "Empathetic Translator", Budget: 300},
}

// notRunPlaceholder substitutes a prior stage output that was skipped, so
// downstream prompts stay well-formed.
const notRunPlaceholder = "Not run (data unavailable)"

// promptContext carries the shared, preformatted case material plus the
// outputs of earlier stages.
type promptContext struct {
	evidenceSummary   string
	clinicalFrame     string
	txAnalysis        string
	inventoryStatus   string
	nbaSection        string
	nbaPatient        string
	stagingConfidence string
	prior             map[degrade.Stage]string
}

func (p promptContext) priorOr(stage degrade.Stage) string {
	if out := p.prior[stage]; out != "" {
		return out
	}
	return notRunPlaceholder
}

func buildPrompt(stage degrade.Stage, p promptContext) string {
	switch stage {
	case degrade.StagePathologist:
		return fmt.Sprintf(`SYSTEM: You are a Virtual Pathologist reviewing histopathology findings for a TB/HIV oncology case in a resource-limited setting.

AVAILABLE EVIDENCE:
%s

CLINICAL FRAME:
%s

YOUR TASK:
- Interpret the histopathology findings (if available)
- Comment on cell morphology, grade, and Ki-67 if implied
- If histopathology is MISSING, state clearly: "Histopathology unavailable — cannot confirm tissue diagnosis."
- Suggest the most important tissue-based next step

%s

Output must contain [Source: Path_Foundation] tags for any histopathology-derived claim.
Keep response under 200 tokens.`, p.evidenceSummary, p.clinicalFrame, citationRule)

	case degrade.StageRadiologist:
		return fmt.Sprintf(`SYSTEM: You are a Virtual Radiologist reviewing imaging findings for a TB/HIV oncology case in a resource-limited setting.

AVAILABLE EVIDENCE:
%s

PREVIOUS ANALYSIS (Pathologist):
%s

YOUR TASK:
- Interpret chest X-ray findings (if available)
- Comment on pulmonary involvement, mediastinal widening, pleural effusion
- Integrate cough analysis findings if available
- If imaging is MISSING, state: "CXR unavailable — cannot assess pulmonary status."

%s

Output must contain [Source: CXR_Foundation] or [Source: HeAR] tags.
Keep response under 200 tokens.`, p.evidenceSummary, p.priorOr(degrade.StagePathologist), citationRule)

	case degrade.StageOncologist:
		return fmt.Sprintf(`SYSTEM: You are a Virtual Oncologist proposing a treatment plan for a TB/HIV oncology case in a resource-limited LMIC clinic.

AVAILABLE EVIDENCE:
%s

PREVIOUS ANALYSES:
Pathologist: %s
Radiologist: %s

DRUG INTERACTION ANALYSIS:
%s

LOCAL INVENTORY STATUS:
%s

YOUR TASK:
- Propose staging based on all available evidence
- Recommend a treatment regimen respecting local drug availability
- Flag any critical ART-chemo interactions
- If key data is missing, prefix staging with "PROVISIONAL"

%s

Output must contain [Source: TxGemma] or [Source: Local_Inventory_JSON] tags for drug-related claims.
Keep response under 200 tokens.`, p.evidenceSummary, p.priorOr(degrade.StagePathologist),
			p.priorOr(degrade.StageRadiologist), p.txAnalysis, p.inventoryStatus, citationRule)

	case degrade.StageSynthesis:
		return fmt.Sprintf(`SYSTEM: You are the Chief Physician Synthesizer conducting a virtual Molecular Tumor Board (MTB). You must produce the final clinical note integrating all specialist opinions.

AVAILABLE EVIDENCE:
%s

SPECIALIST OPINIONS:
Pathologist: %s
Radiologist: %s
Oncologist: %s

MISSING DATA & NEXT BEST ACTIONS:
%s

STAGING CONFIDENCE: %s

YOUR TASK:
1. Synthesize all specialist findings into a unified staging assessment
2. Produce a final treatment recommendation
3. If staging is PROVISIONAL, clearly state what is needed before treatment can begin
4. If pathology is missing, output a WORKUP PLAN not a treatment plan
5. Include all Next Best Action items for missing data
6. Every clinical claim must be tagged with its source model

%s

Keep response under 600 tokens.`, p.evidenceSummary, p.priorOr(degrade.StagePathologist),
			p.priorOr(degrade.StageRadiologist), p.priorOr(degrade.StageOncologist),
			p.nbaSection, p.stagingConfidence, citationRule)

	case degrade.StagePatientTranslation:
		provisional := "false"
		if strings.Contains(p.stagingConfidence, "PROVISIONAL") {
			provisional = "true"
		}
		return fmt.Sprintf(`SYSTEM: You are a compassionate healthcare communicator translating a complex medical summary into a patient-friendly letter.

RULES:
1. Write at a 5th-grade reading level. No medical jargon.
2. If a medical term is unavoidable, explain it in one sentence immediately after.
3. Use warm, reassuring language. The patient may be scared.
4. Structure: What we found → What it means for you → What happens next → What you can do
5. If staging is PROVISIONAL or data is missing, say:
   "We don't have all the information we need yet. Your doctor has recommended
   [specific next steps] as the next step."
6. End with: "You are not alone in this. Your care team is working with you."
7. Max 250 words. No citation tags needed.
8. Do NOT use: "malignancy", "metastasis", "histopathology", "TNM", "regimen",
   "contraindicated", "anthracycline", or any drug abbreviation without explanation.

CLINICAL SUMMARY TO TRANSLATE:
%s

NEXT BEST ACTIONS FOR PATIENT:
%s

STAGING IS PROVISIONAL: %s`, p.priorOr(degrade.StageSynthesis), p.nbaPatient, provisional)
	}
	return ""
}
