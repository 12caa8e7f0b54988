package debate

import (
	"strings"

	"aegis/internal/degrade"
	"aegis/internal/evidence"
)

// Deterministic per-persona templates used whenever the generation backend
// is unavailable or errors. They are parameterized by case state so the
// downstream citation aggregator exercises the same tag paths.

func fallbackFor(stage degrade.Stage, c *degrade.OncoCase) string {
	switch stage {
	case degrade.StagePathologist:
		return fallbackPathologist(c)
	case degrade.StageRadiologist:
		return fallbackRadiologist(c)
	case degrade.StageOncologist:
		return fallbackOncologist()
	case degrade.StageSynthesis:
		return fallbackSynthesis(c)
	case degrade.StagePatientTranslation:
		return fallbackPatientLetter(c)
	}
	return "Analysis pending. Please ensure model access is configured."
}

func sourceMissing(c *degrade.OncoCase, src evidence.SourceID) bool {
	for _, m := range c.MissingSources {
		if evidence.Canonical(m) == src {
			return true
		}
	}
	return false
}

func fallbackPathologist(c *degrade.OncoCase) string {
	if sourceMissing(c, evidence.SourcePathFoundation) {
		return "Histopathology unavailable — cannot confirm tissue diagnosis [Source: Clinical_Frame_JSON]. " +
			"Based on clinical presentation with cervical lymphadenopathy and HIV positivity, " +
			"differential includes high-grade B-cell lymphoma vs reactive hyperplasia [Source: Clinical_Frame_JSON]. " +
			"FNAC of the cervical lymph node is the highest-yield next step."
	}
	return "Histopathology review shows high-grade B-cell lymphoma with diffuse large cell morphology " +
		"[Source: Path_Foundation]. Ki-67 proliferation index estimated >80% [Source: Path_Foundation]. " +
		"Consistent with HIV-associated diffuse large B-cell lymphoma (DLBCL). " +
		"Immunohistochemistry recommended for definitive subtyping [Source: Clinical_Frame_JSON]."
}

func fallbackRadiologist(c *degrade.OncoCase) string {
	if sourceMissing(c, evidence.SourceCXRFoundation) {
		return "CXR unavailable — cannot assess pulmonary status [Source: Clinical_Frame_JSON]. " +
			"Patient reported dry cough for two weeks. Cough analysis shows elevated TB probability " +
			"[Source: HeAR]. Recommend portable chest X-ray before initiating chemotherapy."
	}
	return "Chest X-ray demonstrates bilateral infiltrates with right upper lobe opacity " +
		"[Source: CXR_Foundation]. Mediastinal widening present [Source: CXR_Foundation]. " +
		"Cough analysis indicates elevated TB cough signature (score: 0.73) [Source: HeAR]. " +
		"Findings raise concern for concurrent pulmonary TB. Sputum AFB smear recommended."
}

func fallbackOncologist() string {
	return "Based on integrated pathology and imaging findings, proposed staging: Stage IIB " +
		"(cervical lymphadenopathy + systemic B symptoms) [Source: Clinical_Frame_JSON]. " +
		"Recommended regimen: CHOP (Cyclophosphamide, Doxorubicin, Vincristine, Prednisone) " +
		"[Source: TxGemma]. Rituximab unavailable in local inventory [Source: Local_Inventory_JSON]. " +
		"Critical interaction: Dolutegravir + Vincristine requires monitoring for neuropathy " +
		"[Source: TxGemma]. If TB confirmed, defer chemotherapy and initiate Rifabutin-based TB treatment first."
}

func fallbackSynthesis(c *degrade.OncoCase) string {
	prefix := ""
	if strings.Contains(c.StagingConfidence, "PROVISIONAL") {
		prefix = "PROVISIONAL STAGING — "
	}
	return prefix +
		"MOLECULAR TUMOR BOARD SYNTHESIS:\n\n" +
		"STAGING: Stage IIB HIV-associated DLBCL [Source: Path_Foundation] [Source: Clinical_Frame_JSON].\n\n" +
		"KEY FINDINGS:\n" +
		"- High-grade B-cell lymphoma confirmed on histopathology [Source: Path_Foundation]\n" +
		"- Bilateral pulmonary infiltrates with TB cough signature [Source: CXR_Foundation] [Source: HeAR]\n" +
		"- CD4 count 85 — severe immunosuppression [Source: Clinical_Frame_JSON]\n" +
		"- Two violaceous papules suspicious for Kaposi sarcoma [Source: Derm_Foundation]\n\n" +
		"TREATMENT PLAN:\n" +
		"1. Confirm TB status — if positive, initiate Rifabutin-based TB treatment FIRST\n" +
		"2. CHOP chemotherapy (Rituximab unavailable locally) [Source: Local_Inventory_JSON]\n" +
		"3. Continue ART with doubled Dolutegravir dose (50mg BID) if Rifampicin needed [Source: TxGemma]\n" +
		"4. G-CSF prophylaxis given CD4 < 200 [Source: TxGemma]\n" +
		"5. Punch biopsy of skin lesion to rule out KS [Source: Derm_Foundation]\n\n" +
		"DRUG INTERACTIONS: Vincristine + Dolutegravir — monitor neuropathy [Source: TxGemma]"
}

func fallbackPatientLetter(c *degrade.OncoCase) string {
	if strings.Contains(c.StagingConfidence, "PROVISIONAL") {
		steps := formatNBAPatient(c.NBAList)
		return "Dear Patient,\n\n" +
			"Your doctors have been looking at your test results carefully. Here is what they found:\n\n" +
			"What we found: We don't have all the information we need yet. " +
			"Some important tests are still missing.\n\n" +
			"What it means for you: We can't make a final plan until we have all the results. " +
			"This is normal — your doctors want to be thorough.\n\n" +
			"What happens next: Before your next appointment, your doctor has asked you to:\n" +
			steps + "\n\n" +
			"What you can do: Keep taking your medicines as prescribed. " +
			"Try to eat well and rest. Write down any questions you have for your next visit.\n\n" +
			"You are not alone in this. Your care team is working with you."
	}
	return "Dear Patient,\n\n" +
		"Your doctors have carefully reviewed all your test results. Here is what they found:\n\n" +
		"What we found: The tests show that you have a type of swelling in your lymph nodes " +
		"(these are small bean-shaped parts of your body that help fight infection). " +
		"Your doctors also noticed some changes in your chest area and on your skin.\n\n" +
		"What it means for you: Your doctors have a clear picture of what's going on. " +
		"There are good treatment options available for you.\n\n" +
		"What happens next: Your treatment plan includes:\n" +
		"- First, your doctors will check if you have a lung infection called TB. " +
		"If you do, they'll treat that first.\n" +
		"- Then, you'll start a treatment called CHOP — this is a combination of medicines " +
		"that fight the swelling.\n" +
		"- You'll keep taking your HIV medicines too.\n\n" +
		"What you can do: Keep all your appointments. " +
		"Tell your doctor right away if you feel tingling in your hands or feet.\n\n" +
		"You are not alone in this. Your care team is working with you."
}

// NO_DATA short-circuit messages: the debate is bypassed entirely.
const (
	noDataSynthesis = "No clinical data available. Please upload at minimum one of: " +
		"audio, CXR, skin image, or pathology sample."

	noDataPatientLetter = "Dear Patient,\n\n" +
		"We were unable to review your case because we don't have any " +
		"test results or images yet. Please work with your doctor to " +
		"get the basic tests done, and then we can help.\n\n" +
		"You are not alone in this. Your care team is working with you."
)
