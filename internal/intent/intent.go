// Package intent classifies a free-text benefits query into one of six
// intents and extracts the entities a downstream handler needs, entirely
// offline: no network call, no LLM, pure pattern matching over the query
// text.
package intent

import (
	"regexp"
	"strings"
)

// Intent is one of the six labels in the closed taxonomy.
type Intent string

const (
	MemberVerification Intent = "member_verification"
	DeductibleOOP       Intent = "deductible_oop"
	BenefitAccumulator  Intent = "benefit_accumulator"
	BenefitCoverageRAG  Intent = "benefit_coverage_rag"
	LocalRAG            Intent = "local_rag"
	GeneralInquiry       Intent = "general_inquiry"
)

// agentNames maps each intent to the handler name that owns it.
var agentNames = map[Intent]string{
	MemberVerification: "MemberHandler",
	DeductibleOOP:      "DeductibleHandler",
	BenefitAccumulator: "AccumulatorHandler",
	BenefitCoverageRAG: "RAGQueryEngine",
	LocalRAG:           "LocalDocHandler",
	GeneralInquiry:     "OrchestrationAgent",
}

// Entities holds the fields extracted from a query's text.
type Entities struct {
	MemberID  string `json:"member_id,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Name      string `json:"name,omitempty"`
	Service   string `json:"service,omitempty"`
	QueryType string `json:"query_type"`
}

// Result is the classifier's output.
type Result struct {
	Intent         Intent         `json:"intent"`
	AgentName      string         `json:"agent_name"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Entities       Entities       `json:"entities"`
	PatternMatches map[Intent]int `json:"pattern_matches"`
	FallbackIntent Intent         `json:"fallback_intent"`
}

var (
	memberIDPattern = regexp.MustCompile(`[A-Za-z][0-9]{3,}`)
	dobPattern      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// serviceVocab lists recognized services, longest-phrase-first so a longer
// match (e.g. "physical therapy") wins over a shorter substring (e.g. "pt"
// is only matched when no longer phrase is present).
var serviceVocab = []struct {
	phrase    string
	canonical string
}{
	{"massage therapy", "Massage Therapy"},
	{"physical therapy", "Physical Therapy"},
	{"chiropractic", "Chiropractic"},
	{"chiropractor", "Chiropractic"},
	{"acupuncture", "Acupuncture"},
	{"massage", "Massage Therapy"},
	{"pt", "Physical Therapy"},
}

var statusWords = []string{"active", "eligible", "valid", "verify"}
var usageWords = []string{"how many", "count", "used", "visits", "remaining"}
var financialWords = []string{"deductible", "oop", "out-of-pocket", "copay"}
var coverageWords = []string{"covered", "coverage", "includes", "benefits"}
var docWords = []string{"uploaded", "document", "pdf", "the file"}
var generalWords = []string{"hello", "hi", "hey", "help", "thanks"}

func countHits(lower string, vocab []string) int {
	n := 0
	for _, w := range vocab {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func extractMemberID(query string) string {
	m := memberIDPattern.FindString(query)
	return strings.ToUpper(m)
}

func extractService(lower string) string {
	for _, sv := range serviceVocab {
		if strings.Contains(lower, sv.phrase) {
			return sv.canonical
		}
	}
	return ""
}

func inferQueryType(hasUsage, hasFinancial, hasCoverage, hasStatus bool) string {
	switch {
	case hasUsage:
		return "usage_count"
	case hasFinancial:
		return "financial"
	case hasCoverage:
		return "coverage"
	case hasStatus:
		return "status"
	default:
		return "general"
	}
}

// Classify pattern-matches query against the fixed intent taxonomy. It never
// fails: an unrecognized query returns general_inquiry with confidence 0.3.
func Classify(query string) Result {
	lower := strings.ToLower(strings.TrimSpace(query))

	memberID := extractMemberID(query)
	dob := dobPattern.FindString(query)
	service := extractService(lower)

	statusHits := countHits(lower, statusWords)
	usageHits := countHits(lower, usageWords)
	financialHits := countHits(lower, financialWords)
	coverageHits := countHits(lower, coverageWords)
	docHits := countHits(lower, docWords)
	generalHits := countHits(lower, generalWords)

	hasStatus := statusHits > 0
	hasUsage := usageHits > 0
	hasFinancial := financialHits > 0
	hasCoverage := coverageHits > 0
	hasDoc := docHits > 0

	queryType := inferQueryType(hasUsage, hasFinancial, hasCoverage, hasStatus)

	scores := map[Intent]int{}

	// local_rag: an explicit document reference is the strongest, most
	// specific signal and is evaluated before the service/coverage intents
	// so a query naming both a service and "the document" routes to
	// local_rag (see DESIGN.md's boundary decision).
	if hasDoc && memberID == "" {
		scores[LocalRAG] = docHits + 2
	}

	if memberID != "" && hasStatus && queryType != "usage_count" {
		scores[MemberVerification] = statusHits + 1
	}
	if hasFinancial && memberID != "" {
		scores[DeductibleOOP] = financialHits + 1
	}
	if hasUsage && (service != "" || memberID != "") {
		scores[BenefitAccumulator] = usageHits + 1
	}
	if hasCoverage && memberID == "" && queryType != "usage_count" && scores[LocalRAG] == 0 {
		scores[BenefitCoverageRAG] = coverageHits
	}

	// Tie-break (a): usage_count wins over member_verification when both
	// pattern-match and a service is named.
	if scores[BenefitAccumulator] > 0 && scores[MemberVerification] > 0 && service != "" {
		delete(scores, MemberVerification)
	}

	if len(scores) == 0 {
		scores[GeneralInquiry] = generalHits
	}

	best, bestScore := GeneralInquiry, -1
	for in, sc := range scores {
		if sc > bestScore || (sc == bestScore && in < best) {
			best, bestScore = in, sc
		}
	}

	var result Result
	if bestScore <= 0 {
		// Tie-break (c): nothing scored >= 1.
		result = Result{
			Intent:     GeneralInquiry,
			AgentName:  agentNames[GeneralInquiry],
			Confidence: 0.3,
			Reasoning:  "no intent pattern matched; defaulting to general inquiry",
		}
	} else {
		entityCount := entityCount(memberID, dob, service, queryType)
		confidence := clamp01(0.3 + 0.15*float64(bestScore) + 0.1*float64(entityCount))
		if entityCount > 0 {
			confidence = maxf(confidence, 0.5)
		}
		result = Result{
			Intent:     best,
			AgentName:  agentNames[best],
			Confidence: confidence,
			Reasoning:  reasoningFor(best, bestScore, memberID, service),
		}
	}

	result.Entities = Entities{
		MemberID:  memberID,
		DOB:       dob,
		Service:   service,
		QueryType: queryType,
	}
	result.PatternMatches = scores
	result.FallbackIntent = fallbackIntent(best, scores, memberID, service, hasFinancial, hasUsage)
	return result
}

func entityCount(memberID, dob, service, queryType string) int {
	n := 0
	if memberID != "" {
		n++
	}
	if dob != "" {
		n++
	}
	if service != "" {
		n++
	}
	if queryType != "general" {
		n++
	}
	return n
}

func reasoningFor(in Intent, score int, memberID, service string) string {
	var b strings.Builder
	b.WriteString("matched ")
	b.WriteString(string(in))
	b.WriteString(" pattern")
	if score > 1 {
		b.WriteString("s")
	}
	if memberID != "" {
		b.WriteString(" with member_id ")
		b.WriteString(memberID)
	}
	if service != "" {
		b.WriteString(" and service ")
		b.WriteString(service)
	}
	return b.String()
}

// fallbackIntent picks the second-highest scoring intent, or failing that
// the closest intent implied by the extracted entities.
func fallbackIntent(top Intent, scores map[Intent]int, memberID, service string, hasFinancial, hasUsage bool) Intent {
	second, secondScore := Intent(""), -1
	for in, sc := range scores {
		if in == top {
			continue
		}
		if sc > secondScore {
			second, secondScore = in, sc
		}
	}
	if second != "" {
		return second
	}
	switch {
	case hasFinancial && memberID != "":
		return DeductibleOOP
	case hasUsage:
		return BenefitAccumulator
	case memberID != "":
		return MemberVerification
	case service != "":
		return BenefitAccumulator
	default:
		return GeneralInquiry
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
