// Package handlers implements the relational-data handlers C2-C4: member
// verification and the two transposed-wide-table readers.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mbacore/internal/mbaerrors"
	"mbacore/internal/observability"
	"mbacore/internal/persistence/databases"
)

// MemberResult is the tagged-union result of MemberHandler.Verify.
type MemberResult struct {
	Valid    bool   `json:"valid"`
	MemberID string `json:"member_id,omitempty"`
	Name     string `json:"name,omitempty"`
	DOB      string `json:"dob,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MemberHandler verifies a member against the members relational table.
type MemberHandler struct {
	rel   databases.RelationalAdapter
	table string
}

func NewMemberHandler(rel databases.RelationalAdapter, table string) *MemberHandler {
	return &MemberHandler{rel: rel, table: table}
}

// Verify matches the members table against whichever of memberID, dob, name
// are non-empty, ANDed together. At least one is required.
func (h *MemberHandler) Verify(ctx context.Context, memberID, dob, name string) (MemberResult, error) {
	memberID = strings.TrimSpace(memberID)
	dob = strings.TrimSpace(dob)
	name = strings.TrimSpace(name)
	if memberID == "" && dob == "" && name == "" {
		return MemberResult{Valid: false, Message: "missing parameters"}, nil
	}

	var conds []string
	var params []any
	if memberID != "" {
		params = append(params, memberID)
		conds = append(conds, fmt.Sprintf("member_id = $%d", len(params)))
	}
	if dob != "" {
		params = append(params, dob)
		conds = append(conds, fmt.Sprintf("dob = $%d", len(params)))
	}
	if name != "" {
		params = append(params, "%"+strings.ToLower(name)+"%")
		idx := len(params)
		conds = append(conds, fmt.Sprintf(
			"(lower(first_name || ' ' || last_name) LIKE $%d OR lower(first_name) LIKE $%d OR lower(last_name) LIKE $%d)",
			idx, idx, idx))
	}

	sql := fmt.Sprintf(
		"SELECT member_id, first_name, last_name, dob FROM %s WHERE %s LIMIT 1",
		h.table, strings.Join(conds, " AND "),
	)

	rows, err := h.rel.Execute(ctx, sql, params...)
	if err != nil {
		observability.L(ctx).Error().Err(err).Msg("member_verify_query_error")
		return MemberResult{Valid: false, Message: "authentication failed"}, nil
	}
	if len(rows) == 0 {
		return MemberResult{Valid: false, Message: "authentication failed"}, nil
	}

	row := rows[0]
	first, _ := row["first_name"].(string)
	last, _ := row["last_name"].(string)
	return MemberResult{
		Valid:    true,
		MemberID: stringField(row["member_id"]),
		Name:     strings.TrimSpace(first + " " + last),
		DOB:      stringField(row["dob"]),
	}, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// errMissingMemberID is returned by DeductibleHandler/AccumulatorHandler when a
// required member id is missing.
var errMissingMemberID = fmt.Errorf("%w: member id required", mbaerrors.ErrValidation)
