package pharma

import (
	"regexp"
	"strings"
)

var clinicalKeywords = []string{
	"INTERACTION", "CRITICAL", "MODERATE", "LOW",
	"SUBSTITUTION", "DOSE", "MONITOR", "CONTRAINDICATED",
}

var inventoryKeywords = []string{"NOT IN STOCK", "unavailable", "out of stock"}

// AddSourceTags appends provenance tags to analysis lines. Clinical-content
// lines get the model tag, stock lines get the inventory tag; lines already
// carrying a tag are left alone.
func AddSourceTags(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			out = append(out, line)
			continue
		}
		upper := strings.ToUpper(stripped)
		switch {
		case containsAny(upper, clinicalKeywords):
			if !strings.Contains(stripped, "[Source:") {
				line += " [Source: TxGemma_DDI]"
			}
		case containsAny(stripped, inventoryKeywords):
			if !strings.Contains(stripped, "[Source:") {
				line += " [Source: Local_Inventory_JSON]"
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// StripSourceTags removes every provenance tag, leaving only the prose.
func StripSourceTags(text string) string {
	lines := strings.Split(sourceTagRE.ReplaceAllString(text, ""), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var (
	tableSeparatorRE = regexp.MustCompile(`^\|?\s*[-:]+\s*\|`)
	tableLabelRE     = regexp.MustCompile(`(?i)^\|\s*Drug\s+Interaction`)
	bulletPrefixRE   = regexp.MustCompile(`^[\d.*#\-]+\s*`)
	sourceTagRE      = regexp.MustCompile(`\[Source:\s*\w+(?:_\w+)*\]`)
	severityLabelRE  = regexp.MustCompile(`(?i)^\**(CRITICAL|MODERATE|LOW)\**[:\s]*`)
	htmlTagRE        = regexp.MustCompile(`<[^>]+>`)
)

var skipPrefixes = []string{
	"DRUG INTERACTION", "INTERACTIONS FOUND", "INVENTORY", "SUBSTITUTION",
	"DOSE ADJUSTMENT", "PROPOSED", "CURRENT ART",
}

var severityOrder = []Severity{SeverityCritical, SeverityModerate, SeverityLow}

// ExtractInteractions parses tagged analysis text into typed interaction
// flags. Both prose lines and markdown table rows are accepted; the drug
// pair is split from the detail so consumers can render them separately.
func ExtractInteractions(text string) []Interaction {
	interactions := []Interaction{}
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		upper := strings.ToUpper(stripped)
		if hasAnyPrefix(upper, skipPrefixes) {
			continue
		}
		if tableSeparatorRE.MatchString(stripped) || tableLabelRE.MatchString(stripped) {
			continue
		}

		for _, sev := range severityOrder {
			if !strings.Contains(upper, string(sev)) {
				continue
			}
			var drugs, detail string
			if strings.HasPrefix(stripped, "|") && strings.HasSuffix(stripped, "|") {
				drugs, detail = parseTableRow(stripped)
			} else {
				drugs, detail = parseProseLine(stripped)
			}

			detail = strings.TrimSpace(htmlTagRE.ReplaceAllString(detail, ""))
			drugs = strings.TrimSpace(htmlTagRE.ReplaceAllString(drugs, ""))
			detail = strings.TrimSpace(severityLabelRE.ReplaceAllString(detail, ""))
			if detail == "" {
				break
			}

			interactions = append(interactions, Interaction{
				Severity: sev,
				Drugs:    drugs,
				Detail:   detail,
			})
			break // one severity per line, highest wins
		}
	}
	return interactions
}

func parseTableRow(row string) (drugs, detail string) {
	raw := strings.Split(strings.Trim(row, "|"), "|")
	cells := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(strings.ReplaceAll(c, "**", ""))
		if c != "" {
			cells = append(cells, c)
		}
	}
	switch {
	case len(cells) >= 4:
		// drug pair | severity | mechanism | consequences
		drugs = cells[0]
		mechanism, consequences := cells[2], cells[3]
		if mechanism != consequences {
			detail = mechanism + " — " + consequences
		} else {
			detail = mechanism
		}
	case len(cells) >= 2:
		drugs = cells[0]
		detail = cells[len(cells)-1]
	default:
		detail = strings.Join(cells, " ")
	}
	return drugs, detail
}

func parseProseLine(line string) (drugs, detail string) {
	clean := bulletPrefixRE.ReplaceAllString(line, "")
	clean = strings.TrimSpace(strings.ReplaceAll(clean, "**", ""))
	clean = strings.TrimSpace(sourceTagRE.ReplaceAllString(clean, ""))
	clean = strings.TrimSpace(severityLabelRE.ReplaceAllString(clean, ""))

	detail = clean
	for _, sep := range []string{"—", " - "} {
		if idx := strings.Index(clean, sep); idx >= 0 {
			drugs = strings.TrimSpace(clean[:idx])
			detail = strings.TrimSpace(clean[idx+len(sep):])
			if detail == "" {
				detail = clean
			}
			return drugs, detail
		}
	}
	if idx := strings.Index(clean, ":"); idx >= 0 && idx < 60 {
		drugs = strings.TrimSpace(clean[:idx])
		detail = strings.TrimSpace(clean[idx+1:])
	}
	return drugs, detail
}

// ExtractSubstitutions collects substitution recommendations, stripping
// markdown bullets and provenance tags.
func ExtractSubstitutions(text string) []Substitution {
	subs := []Substitution{}
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		label := strings.TrimRight(strings.ToUpper(stripped), ":")
		if label == "SUBSTITUTION" || label == "SUBSTITUTIONS" {
			continue
		}
		lower := strings.ToLower(stripped)
		if !strings.Contains(lower, "substitut") &&
			!strings.Contains(lower, "replace") &&
			!strings.Contains(lower, "unavailable") {
			continue
		}
		clean := bulletPrefixRE.ReplaceAllString(stripped, "")
		clean = strings.ReplaceAll(clean, "**", "")
		clean = strings.TrimSpace(strings.ReplaceAll(clean, "*", ""))
		clean = strings.TrimSpace(sourceTagRE.ReplaceAllString(clean, ""))
		if clean != "" {
			subs = append(subs, Substitution{Text: clean})
		}
	}
	return subs
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
