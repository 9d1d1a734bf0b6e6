package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMemberVerification(t *testing.T) {
	r := Classify("Is member M1001 active?")
	assert.Equal(t, MemberVerification, r.Intent)
	assert.Equal(t, "MemberHandler", r.AgentName)
	assert.Equal(t, "M1001", r.Entities.MemberID)
	assert.GreaterOrEqual(t, r.Confidence, 0.5)
}

func TestClassifyDeductibleOOP(t *testing.T) {
	r := Classify("What is the deductible for member M1001?")
	assert.Equal(t, DeductibleOOP, r.Intent)
	assert.Equal(t, "M1001", r.Entities.MemberID)
}

func TestClassifyBenefitAccumulator(t *testing.T) {
	r := Classify("How many massage therapy visits has member M1001 used?")
	assert.Equal(t, BenefitAccumulator, r.Intent)
	assert.Equal(t, "Massage Therapy", r.Entities.Service)
	assert.Equal(t, "M1001", r.Entities.MemberID)
}

func TestClassifyBenefitCoverageRAG(t *testing.T) {
	r := Classify("Is acupuncture covered?")
	assert.Equal(t, BenefitCoverageRAG, r.Intent)
	assert.Equal(t, "Acupuncture", r.Entities.Service)
	assert.Empty(t, r.Entities.MemberID)
}

func TestClassifyGeneralInquiry(t *testing.T) {
	r := Classify("Hello")
	assert.Equal(t, GeneralInquiry, r.Intent)
	assert.Equal(t, "OrchestrationAgent", r.AgentName)
}

func TestClassifyNoPatternDefaultsToGeneralWithConfidence03(t *testing.T) {
	r := Classify("xyzzy plugh qux")
	assert.Equal(t, GeneralInquiry, r.Intent)
	assert.InDelta(t, 0.3, r.Confidence, 1e-9)
}

func TestClassifyLocalRAGBeatsCoverageWhenDocumentNamed(t *testing.T) {
	r := Classify("Does the uploaded document say massage is covered?")
	assert.Equal(t, LocalRAG, r.Intent)
}

func TestClassifyMemberIDExtractionUppercasesFirstMatch(t *testing.T) {
	r := Classify("member a123 and b456 are both listed")
	assert.Equal(t, "A123", r.Entities.MemberID)
}

func TestClassifyConfidenceAlwaysInUnitRange(t *testing.T) {
	queries := []string{
		"Is member M1001 active?",
		"How many visits remaining for M9999?",
		"hello",
		"",
		"   ",
		"Is acupuncture covered for M1?",
	}
	for _, q := range queries {
		r := Classify(q)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestClassifyUsageCountBeatsMemberVerificationWhenServiceNamed(t *testing.T) {
	r := Classify("Is member M1001 active and how many massage visits used?")
	assert.Equal(t, BenefitAccumulator, r.Intent)
}
