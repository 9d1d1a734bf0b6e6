package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mbacore/internal/persistence/databases"
)

// MetricSet holds one plan/network bucket's deductible and out-of-pocket
// amounts. Missing metrics are left nil and omitted from JSON by the
// omitempty tags below.
type MetricSet struct {
	Deductible         *int64 `json:"deductible,omitempty"`
	DeductibleMet      *int64 `json:"deductible_met,omitempty"`
	DeductibleRemaining *int64 `json:"deductible_remaining,omitempty"`
	OOP                *int64 `json:"oop,omitempty"`
	OOPMet             *int64 `json:"oop_met,omitempty"`
	OOPRemaining       *int64 `json:"oop_remaining,omitempty"`
}

// DeductibleResult is DeductibleHandler.Lookup's tagged-union result.
type DeductibleResult struct {
	Found      bool                 `json:"found"`
	MemberID   string               `json:"member_id,omitempty"`
	Individual map[string]MetricSet `json:"individual,omitempty"`
	Family     map[string]MetricSet `json:"family,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// DeductibleHandler reads the transposed deductibles_oop wide table.
type DeductibleHandler struct {
	rel   databases.RelationalAdapter
	table string
}

func NewDeductibleHandler(rel databases.RelationalAdapter, table string) *DeductibleHandler {
	return &DeductibleHandler{rel: rel, table: table}
}

// networkKey normalizes the three network tokens to the canonical bucket
// keys used in DeductibleResult.
func networkKey(tok string) string {
	switch strings.ToUpper(tok) {
	case "PPO":
		return "ppo"
	case "PAR":
		return "par"
	case "OON":
		return "oon"
	default:
		return strings.ToLower(tok)
	}
}

// Lookup fetches and parses the deductible/OOP rows for memberID, optionally
// restricted to planType ("individual"|"family") and network ("ppo"|"par"|"oon").
func (h *DeductibleHandler) Lookup(ctx context.Context, memberID, planType, network string) (DeductibleResult, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return DeductibleResult{}, errMissingMemberID
	}
	if err := databases.ValidateIdentifier(memberID); err != nil {
		return DeductibleResult{}, fmt.Errorf("invalid member id: %w", err)
	}

	sql := fmt.Sprintf(`SELECT "Metric", "%s" AS value FROM %s WHERE "%s" IS NOT NULL`, memberID, h.table, memberID)
	rows, err := h.rel.Execute(ctx, sql)
	if err != nil {
		return DeductibleResult{}, fmt.Errorf("query deductibles: %w", err)
	}
	if len(rows) == 0 {
		return DeductibleResult{Found: false, MemberID: memberID, Message: "no deductible data found"}, nil
	}

	individual := map[string]MetricSet{}
	family := map[string]MetricSet{}

	for _, row := range rows {
		metric, _ := row["Metric"].(string)
		amount, ok := coerceInt(row["value"])
		if !ok {
			continue
		}
		family_, bucket, kind, ok := parseWideMetric(metric)
		if !ok {
			continue
		}
		target := individual
		if family_ == "family" {
			target = family
		}
		ms := target[bucket]
		setMetricKind(&ms, kind, amount)
		target[bucket] = ms
	}

	if planType != "" {
		filterPlanType(individual, family, planType)
	}
	if network != "" {
		key := networkKey(network)
		filterNetwork(individual, key)
		filterNetwork(family, key)
	}

	fillRemaining(individual)
	fillRemaining(family)

	return DeductibleResult{
		Found:      true,
		MemberID:   memberID,
		Individual: nonEmpty(individual),
		Family:     nonEmpty(family),
	}, nil
}

// parseWideMetric parses a metric name of the form
// "Deductible|OOP <IND|FAM> <PPO|PAR|OON>[ met| Remaining]".
func parseWideMetric(metric string) (family, bucket, kind string, ok bool) {
	fields := strings.Fields(metric)
	if len(fields) < 3 {
		return "", "", "", false
	}
	metricKind := "base"
	last := fields[len(fields)-1]
	switch strings.ToLower(last) {
	case "met":
		metricKind = "met"
		fields = fields[:len(fields)-1]
	case "remaining":
		metricKind = "remaining"
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 3 {
		return "", "", "", false
	}
	family1 := strings.ToUpper(fields[0])
	planTok := strings.ToUpper(fields[1])
	networkTok := strings.ToUpper(fields[2])
	if family1 != "DEDUCTIBLE" && family1 != "OOP" {
		return "", "", "", false
	}
	var planBucket string
	switch planTok {
	case "IND":
		planBucket = "individual"
	case "FAM":
		planBucket = "family"
	default:
		return "", "", "", false
	}
	switch networkTok {
	case "PPO", "PAR", "OON":
	default:
		return "", "", "", false
	}
	kindField := family1 + "_" + metricKind // e.g. DEDUCTIBLE_base, OOP_met
	return planBucket, networkKey(networkTok), kindField, true
}

func setMetricKind(ms *MetricSet, kindField string, amount int64) {
	switch kindField {
	case "DEDUCTIBLE_base":
		ms.Deductible = &amount
	case "DEDUCTIBLE_met":
		ms.DeductibleMet = &amount
	case "DEDUCTIBLE_remaining":
		ms.DeductibleRemaining = &amount
	case "OOP_base":
		ms.OOP = &amount
	case "OOP_met":
		ms.OOPMet = &amount
	case "OOP_remaining":
		ms.OOPRemaining = &amount
	}
}

func fillRemaining(buckets map[string]MetricSet) {
	for k, ms := range buckets {
		if ms.DeductibleRemaining == nil && ms.Deductible != nil && ms.DeductibleMet != nil {
			ms.DeductibleRemaining = maxZero(*ms.Deductible - *ms.DeductibleMet)
		}
		if ms.OOPRemaining == nil && ms.OOP != nil && ms.OOPMet != nil {
			ms.OOPRemaining = maxZero(*ms.OOP - *ms.OOPMet)
		}
		buckets[k] = ms
	}
}

func maxZero(v int64) *int64 {
	if v < 0 {
		v = 0
	}
	return &v
}

func filterPlanType(individual, family map[string]MetricSet, planType string) {
	switch strings.ToLower(planType) {
	case "individual":
		for k := range family {
			delete(family, k)
		}
	case "family":
		for k := range individual {
			delete(individual, k)
		}
	}
}

func filterNetwork(buckets map[string]MetricSet, key string) {
	for k := range buckets {
		if k != key {
			delete(buckets, k)
		}
	}
}

func nonEmpty(m map[string]MetricSet) map[string]MetricSet {
	if len(m) == 0 {
		return nil
	}
	return m
}

func coerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
