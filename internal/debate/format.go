package debate

import (
	"fmt"
	"sort"
	"strings"

	"aegis/internal/degrade"
	"aegis/internal/evidence"
	"aegis/internal/pharma"
)

func formatEvidence(c *degrade.OncoCase) string {
	var lines []string
	for _, ev := range c.Pool {
		if ev.Status == evidence.StatusMissingData {
			nba := ev.NextBestAction
			if nba == "" {
				nba = "Data unavailable"
			}
			lines = append(lines, fmt.Sprintf("- %s: MISSING — %s", ev.Source, nba))
			continue
		}
		finding := ev.Finding
		if finding == "" {
			finding = "N/A"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", ev.Source, finding))
	}
	if len(lines) == 0 {
		return "No evidence available."
	}
	return strings.Join(lines, "\n")
}

func formatClinicalFrame(frame evidence.ClinicalFrame) string {
	var parts []string
	if len(frame.Symptoms) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(frame.Symptoms, ", "))
	}
	if len(frame.Medications) > 0 {
		parts = append(parts, "Medications: "+strings.Join(frame.Medications, ", "))
	}
	if len(frame.Conditions) > 0 {
		parts = append(parts, "Conditions: "+strings.Join(frame.Conditions, ", "))
	}
	if len(frame.LabValues) > 0 {
		parts = append(parts, "Lab values: "+strings.Join(frame.LabValues, ", "))
	}
	if len(frame.Demographics) > 0 {
		keys := make([]string, 0, len(frame.Demographics))
		for k := range frame.Demographics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var kv []string
		for _, k := range keys {
			kv = append(kv, k+"="+frame.Demographics[k])
		}
		parts = append(parts, "Demographics: "+strings.Join(kv, ", "))
	}
	if len(parts) == 0 {
		return "No clinical data extracted."
	}
	return strings.Join(parts, "\n")
}

func formatTxAnalysis(tx *pharma.Analysis) string {
	if tx == nil {
		return "Drug interaction analysis not available."
	}
	if tx.TaggedOutput == "" {
		return "No drug interaction data."
	}
	return tx.TaggedOutput
}

func formatInventory(alerts []pharma.InventoryAlert) string {
	if len(alerts) == 0 {
		return "All drugs available in local inventory."
	}
	var lines []string
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("! %s: %s", a.Drug, a.Message))
	}
	return strings.Join(lines, "\n")
}

func formatNBA(list []degrade.NBAItem) string {
	if len(list) == 0 {
		return "No missing data — full pipeline executed."
	}
	var lines []string
	for i, nba := range list {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (Cost: INR %s)", i+1, nba.Source, nba.Action, nba.Cost))
	}
	return strings.Join(lines, "\n")
}

func formatNBAPatient(list []degrade.NBAItem) string {
	if len(list) == 0 {
		return "No additional steps needed at this time."
	}
	var lines []string
	for _, nba := range list {
		text := nba.PatientFacing
		if text == "" {
			text = nba.Action
		}
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}
