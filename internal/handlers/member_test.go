package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyMissingParametersReturnsMessage(t *testing.T) {
	h := NewMemberHandler(&fakeRelational{}, "members")
	res, err := h.Verify(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "missing parameters", res.Message)
}

func TestVerifyMatchFormatsDOBAsISODate(t *testing.T) {
	rel := &fakeRelational{rows: [][]map[string]any{{
		{
			"member_id":  "M1001",
			"first_name": "Jane",
			"last_name":  "Doe",
			"dob":        time.Date(2005, 5, 23, 0, 0, 0, 0, time.UTC),
		},
	}}}
	h := NewMemberHandler(rel, "members")
	res, err := h.Verify(context.Background(), "M1001", "", "")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "M1001", res.MemberID)
	assert.Equal(t, "Jane Doe", res.Name)
	assert.Equal(t, "2005-05-23", res.DOB)
}

func TestVerifyNoRowsFailsAuthentication(t *testing.T) {
	rel := &fakeRelational{rows: [][]map[string]any{{}}}
	h := NewMemberHandler(rel, "members")
	res, err := h.Verify(context.Background(), "M9999", "", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "authentication failed", res.Message)
}

func TestVerifyQueryErrorFailsAuthenticationWithoutLeakingDetails(t *testing.T) {
	rel := &fakeRelational{err: assert.AnError}
	h := NewMemberHandler(rel, "members")
	res, err := h.Verify(context.Background(), "M1001", "", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "authentication failed", res.Message)
}
