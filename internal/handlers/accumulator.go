package handlers

import (
	"context"
	"fmt"
	"strings"

	"mbacore/internal/persistence/databases"
)

// AccumulatorMetric holds one service's used/limit/remaining counts.
type AccumulatorMetric struct {
	Used      *int64 `json:"used,omitempty"`
	Limit     *int64 `json:"limit,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
}

// AccumulatorResult is AccumulatorHandler.Lookup's tagged-union result.
type AccumulatorResult struct {
	Found    bool                         `json:"found"`
	MemberID string                       `json:"member_id,omitempty"`
	Services map[string]AccumulatorMetric `json:"services,omitempty"`
	Message  string                       `json:"message,omitempty"`
}

// AccumulatorHandler reads the transposed benefit_accumulators wide table.
type AccumulatorHandler struct {
	rel   databases.RelationalAdapter
	table string
}

func NewAccumulatorHandler(rel databases.RelationalAdapter, table string) *AccumulatorHandler {
	return &AccumulatorHandler{rel: rel, table: table}
}

// Lookup fetches and parses the accumulator rows for memberID, optionally
// restricted to services whose name contains the service substring
// (case-insensitive).
func (h *AccumulatorHandler) Lookup(ctx context.Context, memberID, service string) (AccumulatorResult, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return AccumulatorResult{}, errMissingMemberID
	}
	if err := databases.ValidateIdentifier(memberID); err != nil {
		return AccumulatorResult{}, fmt.Errorf("invalid member id: %w", err)
	}

	sql := fmt.Sprintf(`SELECT "Metric", "%s" AS value FROM %s WHERE "%s" IS NOT NULL`, memberID, h.table, memberID)
	rows, err := h.rel.Execute(ctx, sql)
	if err != nil {
		return AccumulatorResult{}, fmt.Errorf("query accumulators: %w", err)
	}
	if len(rows) == 0 {
		return AccumulatorResult{Found: false, MemberID: memberID, Message: "no accumulator data found"}, nil
	}

	services := map[string]AccumulatorMetric{}
	serviceFilter := strings.ToLower(strings.TrimSpace(service))

	for _, row := range rows {
		metric, _ := row["Metric"].(string)
		amount, ok := coerceInt(row["value"])
		if !ok {
			continue
		}
		name, kind, ok := parseAccumulatorMetric(metric)
		if !ok {
			continue
		}
		if serviceFilter != "" && !strings.Contains(strings.ToLower(name), serviceFilter) {
			continue
		}
		am := services[name]
		switch kind {
		case "used":
			am.Used = &amount
		case "limit":
			am.Limit = &amount
		case "remaining":
			am.Remaining = &amount
		}
		services[name] = am
	}

	if len(services) == 0 {
		return AccumulatorResult{Found: false, MemberID: memberID, Message: "no accumulator data found"}, nil
	}

	for k, am := range services {
		if am.Remaining == nil && am.Used != nil && am.Limit != nil {
			am.Remaining = maxZero(*am.Limit - *am.Used)
			services[k] = am
		}
	}

	return AccumulatorResult{Found: true, MemberID: memberID, Services: services}, nil
}

// parseAccumulatorMetric parses a metric name of the form
// "<Service Name> Used|Limit|Remaining".
func parseAccumulatorMetric(metric string) (name, kind string, ok bool) {
	metric = strings.TrimSpace(metric)
	fields := strings.Fields(metric)
	if len(fields) < 2 {
		return "", "", false
	}
	last := fields[len(fields)-1]
	switch strings.ToLower(last) {
	case "used":
		kind = "used"
	case "limit":
		kind = "limit"
	case "remaining":
		kind = "remaining"
	default:
		return "", "", false
	}
	name = strings.Join(fields[:len(fields)-1], " ")
	if name == "" {
		return "", "", false
	}
	return name, kind, true
}
