package ingest

import (
	"regexp"
	"strings"
)

// ChunkMetadata is the enrichment computed per chunk and stored flattened
// into the vector point's payload alongside the source document's metadata.
type ChunkMetadata struct {
	SectionTitle    string   `json:"section_title,omitempty"`
	BenefitCategory string   `json:"benefit_category,omitempty"`
	CoverageType    string   `json:"coverage_type,omitempty"`
	CPTCodes        []string `json:"cpt_codes,omitempty"`
	HasCostInfo     bool     `json:"has_cost_info"`
}

var (
	headingHashRe = regexp.MustCompile(`(?m)^\s*#+\s*(.+)$`)
	headingColonRe = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 /&-]{2,60}):\s*$`)
	cptCodeRe     = regexp.MustCompile(`\b\d{5}\b`)
)

var benefitCategoryKeywords = map[string][]string{
	"therapy":    {"therapy", "chiropractic", "chiropractor", "acupuncture", "physical therapy", "massage"},
	"diagnostic": {"diagnostic", "x-ray", "xray", "lab", "laboratory", "imaging", "mri", "ct scan"},
	"preventive": {"preventive", "wellness", "screening", "immunization", "vaccination", "annual exam"},
}

var coverageTypeKeywords = map[string][]string{
	"prior_auth_required": {"prior authorization", "prior auth", "pre-authorization", "preauthorization"},
	"excluded":             {"not covered", "excluded", "exclusion"},
	"covered":              {"covered", "coverage includes", "benefit includes"},
}

// enrich computes ChunkMetadata for a chunk's text.
func enrich(text string) ChunkMetadata {
	lower := strings.ToLower(text)
	return ChunkMetadata{
		SectionTitle:    sectionTitle(text),
		BenefitCategory: matchKeywordFamily(lower, benefitCategoryKeywords),
		CoverageType:    matchKeywordFamily(lower, coverageTypeKeywords),
		CPTCodes:        cptCodes(text),
		HasCostInfo:     strings.Contains(text, "$"),
	}
}

// sectionTitle finds a heading-like line: one starting with '#' or, standing
// alone, ending in ':'.
func sectionTitle(text string) string {
	if m := headingHashRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := headingColonRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func matchKeywordFamily(lower string, families map[string][]string) string {
	for family, keywords := range families {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return family
			}
		}
	}
	return ""
}

// cptCodes returns up to 10 distinct 5-digit numeric codes found in text, in
// order of first appearance.
func cptCodes(text string) []string {
	matches := cptCodeRe.FindAllString(text, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) == 10 {
			break
		}
	}
	return out
}
