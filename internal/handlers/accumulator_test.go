package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorLookupMissingMemberIDReturnsValidationError(t *testing.T) {
	h := NewAccumulatorHandler(&fakeRelational{}, "benefit_accumulators")
	_, err := h.Lookup(context.Background(), "", "")
	assert.ErrorIs(t, err, errMissingMemberID)
}

func TestAccumulatorLookupComputesRemaining(t *testing.T) {
	rows := wideRows(map[string]int64{
		"Massage Therapy Used":  6,
		"Massage Therapy Limit": 20,
	})
	rel := &fakeRelational{rows: [][]map[string]any{rows}}
	h := NewAccumulatorHandler(rel, "benefit_accumulators")

	res, err := h.Lookup(context.Background(), "M1001", "")
	require.NoError(t, err)
	require.True(t, res.Found)

	svc := res.Services["Massage Therapy"]
	require.NotNil(t, svc.Used)
	require.NotNil(t, svc.Limit)
	require.NotNil(t, svc.Remaining)
	assert.EqualValues(t, 6, *svc.Used)
	assert.EqualValues(t, 20, *svc.Limit)
	assert.EqualValues(t, 14, *svc.Remaining)
}

func TestAccumulatorLookupServiceFilterIsCaseInsensitiveSubstring(t *testing.T) {
	rows := wideRows(map[string]int64{
		"Massage Therapy Used":     6,
		"Acupuncture Visits Used":  3,
	})
	rel := &fakeRelational{rows: [][]map[string]any{rows}}
	h := NewAccumulatorHandler(rel, "benefit_accumulators")

	res, err := h.Lookup(context.Background(), "M1001", "massage")
	require.NoError(t, err)
	assert.Contains(t, res.Services, "Massage Therapy")
	assert.NotContains(t, res.Services, "Acupuncture Visits")
}

func TestAccumulatorLookupNoMatchingServiceReturnsNotFound(t *testing.T) {
	rows := wideRows(map[string]int64{"Massage Therapy Used": 6})
	rel := &fakeRelational{rows: [][]map[string]any{rows}}
	h := NewAccumulatorHandler(rel, "benefit_accumulators")

	res, err := h.Lookup(context.Background(), "M1001", "acupuncture")
	require.NoError(t, err)
	assert.False(t, res.Found)
}
