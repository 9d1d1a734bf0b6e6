// Package orchestrator implements ToolResultCapture (C8) and the
// Orchestrator (C9): the LLM tool-calling driver that classifies a query,
// routes it to the owning handler, and assembles a structured response from
// whatever the tools actually returned rather than the model's narration.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"mbacore/internal/handlers"
	"mbacore/internal/intent"
	"mbacore/internal/llm"
	"mbacore/internal/mbaerrors"
	"mbacore/internal/observability"
	"mbacore/internal/rag/localdoc"
	"mbacore/internal/rag/retrieve"
)

// maxToolSteps bounds the agent loop: analyze_query, route_to_agent, an
// optional format_response, and the model's final narration comfortably fit
// in far fewer turns, but a misbehaving driver must not loop forever.
const maxToolSteps = 6

var analyzeQuerySchema = llm.ToolSchema{
	Name:        "analyze_query",
	Description: "Classify the user's query into one of the fixed intents and extract its entities.",
	Parameters: map[string]any{
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "the user's query text"},
		},
		"required": []string{"query"},
	},
}

var routeToAgentSchema = llm.ToolSchema{
	Name:        "route_to_agent",
	Description: "Dispatch the classified query to the handler that owns its intent.",
	Parameters: map[string]any{
		"properties": map[string]any{
			"intent":     map[string]any{"type": "string"},
			"agent_name": map[string]any{"type": "string"},
			"entities":   map[string]any{"type": "object"},
			"query":      map[string]any{"type": "string"},
		},
		"required": []string{"intent", "agent_name"},
	},
}

var formatResponseSchema = llm.ToolSchema{
	Name:        "format_response",
	Description: "Optionally render the routing result as user-facing text. Cosmetic only; never required for correctness.",
	Parameters: map[string]any{
		"properties": map[string]any{
			"routing_result": map[string]any{"type": "object"},
		},
	},
}

var orchestratorSystemPrompt = "You are the orchestration driver for a medical benefits query service. " +
	"For every request you must call analyze_query exactly once, then call route_to_agent exactly once " +
	"using analyze_query's own output. You may optionally call format_response afterward to produce a " +
	"short user-facing summary. Never answer a benefits question yourself from general knowledge; the " +
	"handlers are the only source of truth."

// routingResult is route_to_agent's captured value.
type routingResult struct {
	Agent         string           `json:"agent"`
	Success       bool             `json:"success"`
	Result        any              `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
	ErrorCategory mbaerrors.Category `json:"error_category,omitempty"`
}

// OrchestrationResponse is Orchestrator.Process's result, assembled purely
// from ToolResultCapture's analyze_query and route_to_agent entries.
type OrchestrationResponse struct {
	Success           bool               `json:"success"`
	Intent            string             `json:"intent,omitempty"`
	Confidence        float64            `json:"confidence,omitempty"`
	Reasoning         string             `json:"reasoning,omitempty"`
	ExtractedEntities intent.Entities    `json:"extracted_entities,omitempty"`
	Agent             string             `json:"agent,omitempty"`
	Result            any                `json:"result,omitempty"`
	Error             string             `json:"error,omitempty"`
	ErrorCategory     mbaerrors.Category `json:"error_category,omitempty"`
}

// HistoryItem is one entry in a session's query history.
type HistoryItem struct {
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Agent      string    `json:"agent"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

// AdapterStatus reports which leaf adapters (C10) were successfully
// initialized, for the Health endpoint.
type AdapterStatus struct {
	Relational  bool
	ObjectStore bool
	VectorStore bool
	Embedding   bool
	Reranker    bool
	Generation  bool
	LocalStore  bool
}

// HealthStatus is Health()'s result.
type HealthStatus struct {
	Healthy  bool            `json:"healthy"`
	Adapters map[string]bool `json:"adapters"`
}

// BatchResult is OrchestrateBatch's result.
type BatchResult struct {
	Results    []OrchestrationResponse `json:"results"`
	Total      int                     `json:"total"`
	Successful int                     `json:"successful"`
	Failed     int                     `json:"failed"`
	Intents    map[string]int          `json:"intents"`
}

// Orchestrator is the Orchestrator (C9). One instance is constructed per
// process and reused across requests: the LLM driver is expensive to build,
// and every other field is either immutable or internally synchronized
// (session history), so no per-request Orchestrator instance is needed. Each
// call to Process constructs its own Capture, satisfying the per-request
// isolation §5 requires.
type Orchestrator struct {
	llm      llm.Provider
	model    string
	adapters AdapterStatus

	member      *handlers.MemberHandler
	deductible  *handlers.DeductibleHandler
	accumulator *handlers.AccumulatorHandler
	rag         *retrieve.Engine
	ragIndex    string
	localDoc    *localdoc.Handler
	localIndex  string

	maxHistory int
	mu         sync.Mutex
	sessions   map[string][]HistoryItem
}

// Dependencies bundles the handlers and retrieval engines an Orchestrator
// dispatches to. A nil field disables that intent: routing to it surfaces a
// typed internal error rather than panicking.
type Dependencies struct {
	Member      *handlers.MemberHandler
	Deductible  *handlers.DeductibleHandler
	Accumulator *handlers.AccumulatorHandler
	RAG         *retrieve.Engine
	RAGIndex    string
	LocalDoc    *localdoc.Handler
	LocalIndex  string
}

// New builds an Orchestrator. gen/model back the tool-calling loop and are
// lazily reused across every call to Process, never reconstructed per
// request.
func New(gen llm.Provider, model string, deps Dependencies, adapters AdapterStatus, maxHistory int) *Orchestrator {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Orchestrator{
		llm:         gen,
		model:       model,
		adapters:    adapters,
		member:      deps.Member,
		deductible:  deps.Deductible,
		accumulator: deps.Accumulator,
		rag:         deps.RAG,
		ragIndex:    deps.RAGIndex,
		localDoc:    deps.LocalDoc,
		localIndex:  deps.LocalIndex,
		maxHistory:  maxHistory,
		sessions:    make(map[string][]HistoryItem),
	}
}

// Process drives the mandatory analyze_query -> route_to_agent -> optional
// format_response tool sequence for one prompt and assembles the response
// from what the tools captured. It always returns a structured response, a
// nil error, even on cancellation or handler failure.
func (o *Orchestrator) Process(ctx context.Context, prompt string, sessionID string, preserveHistory bool) (OrchestrationResponse, error) {
	prompt = strings.TrimSpace(prompt)
	capture := NewCapture()
	defer capture.Clear()

	if prompt == "" {
		return OrchestrationResponse{Success: false, Error: "prompt is required", ErrorCategory: mbaerrors.CategoryValidation}, nil
	}

	if err := ctx.Err(); err != nil {
		return OrchestrationResponse{Success: false, Error: "cancelled", ErrorCategory: mbaerrors.CategoryCancelled}, nil
	}

	o.runToolLoop(ctx, prompt, capture)

	// Step 1 is never skipped in practice (it never fails), but guard the
	// edge case where the driver never called the tool at all.
	if _, ok := capture.Get("analyze_query"); !ok {
		capture.Put("analyze_query", intent.Classify(prompt))
	}
	// Direct-invoke fallback: the LLM driver skipped route_to_agent.
	if _, ok := capture.Get("route_to_agent"); !ok {
		ir, _ := capture.Get("analyze_query")
		capture.Put("route_to_agent", o.dispatch(ctx, ir.(intent.Result), prompt))
	}

	ir := capture.values["analyze_query"].(intent.Result)
	rr := capture.values["route_to_agent"].(routingResult)

	resp := OrchestrationResponse{
		Success:           rr.Success,
		Intent:            string(ir.Intent),
		Confidence:        ir.Confidence,
		Reasoning:         ir.Reasoning,
		ExtractedEntities: ir.Entities,
		Agent:             rr.Agent,
		Result:            rr.Result,
		Error:             rr.Error,
		ErrorCategory:     rr.ErrorCategory,
	}

	if sessionID != "" && preserveHistory {
		o.appendHistory(sessionID, HistoryItem{
			Query:      prompt,
			Intent:     resp.Intent,
			Confidence: resp.Confidence,
			Agent:      resp.Agent,
			Success:    resp.Success,
			Timestamp:  time.Now(),
		})
	}

	return resp, nil
}

// runToolLoop drives the LLM agent loop. Tool calls are executed locally
// against capture; the loop ends when the model stops requesting tools or
// maxToolSteps is reached, whichever comes first.
func (o *Orchestrator) runToolLoop(ctx context.Context, prompt string, capture *Capture) {
	log := observability.L(ctx)
	schemas := []llm.ToolSchema{analyzeQuerySchema, routeToAgentSchema, formatResponseSchema}
	msgs := []llm.Message{
		{Role: "system", Content: orchestratorSystemPrompt},
		{Role: "user", Content: prompt},
	}

	for step := 0; step < maxToolSteps; step++ {
		msg, err := o.llm.Chat(ctx, msgs, schemas, o.model)
		if err != nil {
			log.Warn().Err(err).Int("step", step).Msg("orchestrator_tool_loop_chat_failed")
			return
		}
		msgs = append(msgs, msg)
		if len(msg.ToolCalls) == 0 {
			return
		}
		for _, tc := range msg.ToolCalls {
			result := o.executeTool(ctx, tc, capture, prompt)
			msgs = append(msgs, llm.Message{Role: "tool", ToolID: toolCallID(tc), Content: jsonString(result)})
		}
	}
}

func toolCallID(tc llm.ToolCall) string {
	if strings.TrimSpace(tc.ID) != "" {
		return tc.ID
	}
	return tc.Name
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (o *Orchestrator) executeTool(ctx context.Context, tc llm.ToolCall, capture *Capture, prompt string) any {
	switch tc.Name {
	case "analyze_query":
		var args struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(tc.Args, &args)
		q := strings.TrimSpace(args.Query)
		if q == "" {
			q = prompt
		}
		result := intent.Classify(q)
		capture.Put("analyze_query", result)
		return result
	case "route_to_agent":
		ir, ok := capture.Get("analyze_query")
		irResult, ok2 := ir.(intent.Result)
		if !ok || !ok2 {
			irResult = intent.Classify(prompt)
			capture.Put("analyze_query", irResult)
		}
		rr := o.dispatch(ctx, irResult, prompt)
		capture.Put("route_to_agent", rr)
		return rr
	case "format_response":
		rr, _ := capture.Get("route_to_agent")
		summary := formatSummary(rr)
		capture.Put("format_response", summary)
		return summary
	default:
		return map[string]string{"error": fmt.Sprintf("unknown tool %q", tc.Name)}
	}
}

func formatSummary(v any) string {
	rr, ok := v.(routingResult)
	if !ok {
		return "no routing result available yet"
	}
	if !rr.Success {
		return fmt.Sprintf("%s could not complete the request: %s", rr.Agent, rr.Error)
	}
	return fmt.Sprintf("%s completed the request successfully", rr.Agent)
}

// dispatch invokes the handler owning ir.Intent. It never panics: a
// handler's Go error is classified and captured as a typed failure rather
// than surfaced across the Orchestrator boundary.
func (o *Orchestrator) dispatch(ctx context.Context, ir intent.Result, query string) routingResult {
	if err := ctx.Err(); err != nil {
		return routingResult{Agent: ir.AgentName, Success: false, Error: "cancelled", ErrorCategory: mbaerrors.CategoryCancelled}
	}

	switch ir.Intent {
	case intent.MemberVerification:
		if o.member == nil {
			return unavailable(ir.AgentName, "member")
		}
		res, err := o.member.Verify(ctx, ir.Entities.MemberID, ir.Entities.DOB, ir.Entities.Name)
		if err != nil {
			return errored(ir.AgentName, err)
		}
		return routingResult{Agent: ir.AgentName, Success: res.Valid, Result: res}

	case intent.DeductibleOOP:
		if o.deductible == nil {
			return unavailable(ir.AgentName, "deductible")
		}
		res, err := o.deductible.Lookup(ctx, ir.Entities.MemberID, "", "")
		if err != nil {
			return errored(ir.AgentName, err)
		}
		return routingResult{Agent: ir.AgentName, Success: res.Found, Result: res}

	case intent.BenefitAccumulator:
		if o.accumulator == nil {
			return unavailable(ir.AgentName, "accumulator")
		}
		res, err := o.accumulator.Lookup(ctx, ir.Entities.MemberID, ir.Entities.Service)
		if err != nil {
			return errored(ir.AgentName, err)
		}
		return routingResult{Agent: ir.AgentName, Success: res.Found, Result: res}

	case intent.BenefitCoverageRAG:
		if o.rag == nil {
			return unavailable(ir.AgentName, "benefit coverage index")
		}
		res, err := o.rag.Query(ctx, query, o.ragIndex, 5, true)
		if err != nil {
			return errored(ir.AgentName, err)
		}
		return routingResult{Agent: ir.AgentName, Success: res.Success, Result: res}

	case intent.LocalRAG:
		if o.localDoc == nil {
			return unavailable(ir.AgentName, "local document index")
		}
		res, err := o.localDoc.Query(ctx, query, o.localIndex, 5, true)
		if err != nil {
			return errored(ir.AgentName, err)
		}
		return routingResult{Agent: ir.AgentName, Success: res.Success, Result: res}

	default: // intent.GeneralInquiry and any unrecognized label
		return routingResult{Agent: ir.AgentName, Success: true, Result: capabilityResponse()}
	}
}

func unavailable(agent, what string) routingResult {
	return routingResult{
		Agent:         agent,
		Success:       false,
		Error:         fmt.Sprintf("%s is not configured", what),
		ErrorCategory: mbaerrors.CategoryInternal,
	}
}

// errored classifies a handler's Go error and redacts anything beyond a
// validation or not-found message, which are already caller-safe.
func errored(agent string, err error) routingResult {
	cat := mbaerrors.Classify(err)
	msg := err.Error()
	switch cat {
	case mbaerrors.CategoryValidation, mbaerrors.CategoryNotFound:
		// already a safe, user-facing message
	case mbaerrors.CategoryCancelled:
		msg = "cancelled"
	default:
		msg = genericErrorMessage(cat)
	}
	return routingResult{Agent: agent, Success: false, Error: msg, ErrorCategory: cat}
}

func genericErrorMessage(cat mbaerrors.Category) string {
	switch cat {
	case mbaerrors.CategoryIntegrationTransient:
		return "a downstream service is temporarily unavailable"
	case mbaerrors.CategoryIntegrationPermanent:
		return "a downstream service returned an invalid response"
	default:
		return "internal error"
	}
}

func capabilityResponse() map[string]any {
	return map[string]any{
		"message": "I can verify member eligibility, look up deductible/out-of-pocket and accumulator balances, " +
			"and answer benefit coverage questions from indexed plan documents.",
		"capabilities": []string{
			"member_verification", "deductible_oop", "benefit_accumulator", "benefit_coverage_rag", "local_rag",
		},
	}
}

func (o *Orchestrator) appendHistory(sessionID string, item HistoryItem) {
	o.mu.Lock()
	defer o.mu.Unlock()
	hist := append(o.sessions[sessionID], item)
	if len(hist) > o.maxHistory {
		hist = hist[len(hist)-o.maxHistory:]
	}
	o.sessions[sessionID] = hist
}

// History returns a copy of sessionID's recorded query history.
func (o *Orchestrator) History(sessionID string) []HistoryItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	hist := o.sessions[sessionID]
	out := make([]HistoryItem, len(hist))
	copy(out, hist)
	return out
}

// ClearHistory discards sessionID's recorded history.
func (o *Orchestrator) ClearHistory(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, sessionID)
}

// OrchestrateBatch runs prompts independently (no ordering guarantee between
// them, matching §5) and aggregates their outcomes. context carries no
// session id: batch requests never persist to history.
func (o *Orchestrator) OrchestrateBatch(ctx context.Context, prompts []string) BatchResult {
	results := make([]OrchestrationResponse, len(prompts))

	const maxParallel = 8
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, p := range prompts {
		i, p := i, p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, _ := o.Process(ctx, p, "", false)
			results[i] = res
		}()
	}
	wg.Wait()

	out := BatchResult{Results: results, Total: len(results), Intents: map[string]int{}}
	for _, r := range results {
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
		}
		if r.Intent != "" {
			out.Intents[r.Intent]++
		}
	}
	return out
}

// Health reports process liveness and each adapter's initialized state.
func (o *Orchestrator) Health() HealthStatus {
	adapters := map[string]bool{
		"relational":   o.adapters.Relational,
		"object_store": o.adapters.ObjectStore,
		"vector_store": o.adapters.VectorStore,
		"embedding":    o.adapters.Embedding,
		"reranker":     o.adapters.Reranker,
		"generation":   o.adapters.Generation,
		"local_store":  o.adapters.LocalStore,
	}
	healthy := true
	for _, ok := range adapters {
		if !ok {
			healthy = false
			break
		}
	}
	return HealthStatus{Healthy: healthy, Adapters: adapters}
}
