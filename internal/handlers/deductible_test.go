package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wideRows(pairs map[string]int64) []map[string]any {
	var out []map[string]any
	for metric, value := range pairs {
		out = append(out, map[string]any{"Metric": metric, "value": value})
	}
	return out
}

func TestLookupMissingMemberIDReturnsValidationError(t *testing.T) {
	h := NewDeductibleHandler(&fakeRelational{}, "deductibles_oop")
	_, err := h.Lookup(context.Background(), "", "", "")
	assert.ErrorIs(t, err, errMissingMemberID)
}

func TestLookupDeductiblePPOComputesRemaining(t *testing.T) {
	rows := wideRows(map[string]int64{
		"Deductible IND PPO":     2683,
		"Deductible IND PPO met": 1840,
		"OOP IND PPO":            1120,
		"OOP IND PPO met":        495,
	})
	rel := &fakeRelational{rows: [][]map[string]any{rows}}
	h := NewDeductibleHandler(rel, "deductibles_oop")

	res, err := h.Lookup(context.Background(), "M1001", "", "")
	require.NoError(t, err)
	require.True(t, res.Found)

	ppo := res.Individual["ppo"]
	require.NotNil(t, ppo.Deductible)
	require.NotNil(t, ppo.DeductibleMet)
	require.NotNil(t, ppo.DeductibleRemaining)
	require.NotNil(t, ppo.OOP)
	require.NotNil(t, ppo.OOPMet)
	require.NotNil(t, ppo.OOPRemaining)
	assert.EqualValues(t, 2683, *ppo.Deductible)
	assert.EqualValues(t, 1840, *ppo.DeductibleMet)
	assert.EqualValues(t, 843, *ppo.DeductibleRemaining)
	assert.EqualValues(t, 1120, *ppo.OOP)
	assert.EqualValues(t, 495, *ppo.OOPMet)
	assert.EqualValues(t, 625, *ppo.OOPRemaining)
}

func TestLookupNetworkFilterRestrictsBuckets(t *testing.T) {
	rows := wideRows(map[string]int64{
		"Deductible IND PPO": 2683,
		"Deductible IND OON": 5000,
	})
	rel := &fakeRelational{rows: [][]map[string]any{rows}}
	h := NewDeductibleHandler(rel, "deductibles_oop")

	res, err := h.Lookup(context.Background(), "M1001", "", "ppo")
	require.NoError(t, err)
	_, hasOON := res.Individual["oon"]
	assert.False(t, hasOON)
	assert.Contains(t, res.Individual, "ppo")
}

func TestLookupNoRowsReturnsNotFound(t *testing.T) {
	rel := &fakeRelational{rows: [][]map[string]any{{}}}
	h := NewDeductibleHandler(rel, "deductibles_oop")
	res, err := h.Lookup(context.Background(), "M1001", "", "")
	require.NoError(t, err)
	assert.False(t, res.Found)
}
