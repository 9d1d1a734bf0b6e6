// Command mbacore runs the medical benefits query core as a single-process
// CLI: load configuration, wire every adapter and handler, and drive the
// orchestrator either for one query (-q) or interactively over stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"mbacore/internal/config"
	"mbacore/internal/handlers"
	"mbacore/internal/llm"
	"mbacore/internal/objectstore"
	"mbacore/internal/observability"
	"mbacore/internal/orchestrator"
	"mbacore/internal/persistence/databases"
	"mbacore/internal/rag/embedder"
	"mbacore/internal/rag/ingest"
	"mbacore/internal/rag/localdoc"
	"mbacore/internal/rag/retrieve"
)

func main() {
	query := flag.String("q", "", "run a single query and exit instead of reading stdin")
	sessionID := flag.String("session", "", "session id to thread history under (single-query mode only)")
	flag.Parse()

	// config.Load resolves config.yaml (or $CONFIG_PATH), overlaying .env
	// and a handful of MBA_* environment variables for secrets.
	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("config error: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()
	o, cleanup, err := wire(ctx, cfg)
	if err != nil {
		pterm.Error.Printf("wiring error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	health := o.Health()
	pterm.Info.Printfln("adapters: %s", adapterSummary(health.Adapters))
	if !health.Healthy {
		pterm.Warning.Println("one or more adapters are unavailable; degraded intents will report errors")
	}

	if *query != "" {
		resp, err := o.Process(ctx, *query, *sessionID, *sessionID != "")
		if err != nil {
			pterm.Error.Printf("process error: %v\n", err)
			os.Exit(1)
		}
		printResponse(resp)
		return
	}

	runREPL(ctx, o)
}

// wire builds every adapter and handler from cfg and returns the assembled
// orchestrator plus a cleanup func that closes them in reverse order.
func wire(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, func(), error) {
	var adapters orchestrator.AdapterStatus
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var rel databases.RelationalAdapter
	if cfg.Database.DSN != "" {
		r, err := databases.NewRelationalAdapter(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			pterm.Warning.Printf("relational store unavailable: %v\n", err)
		} else {
			rel = r
			adapters.Relational = true
			closers = append(closers, rel.Close)
		}
	}

	var buckets objectstore.BucketClient
	if cfg.ObjectStore.Bucket != "" {
		s3, err := objectstore.NewS3Store(ctx, cfg.ObjectStore)
		if err != nil {
			pterm.Warning.Printf("object store unavailable: %v\n", err)
		} else {
			buckets = s3
			adapters.ObjectStore = true
		}
	}

	vecOpen := func(_ context.Context, indexName string) (databases.VectorStore, error) {
		return databases.NewQdrantVector(cfg.VectorStore.DSN, indexName, cfg.VectorStore.Dimension, cfg.VectorStore.Metric)
	}
	if cfg.VectorStore.DSN != "" {
		if _, err := vecOpen(ctx, cfg.VectorStore.Collection); err != nil {
			pterm.Warning.Printf("vector store unavailable: %v\n", err)
		} else {
			adapters.VectorStore = true
		}
	}

	embed := embedder.NewClient(cfg.Embedding, cfg.VectorStore.Dimension)
	if cfg.Embedding.Host != "" {
		adapters.Embedding = true
	}

	reranker := retrieve.NewCrossEncoderReranker(cfg.Reranker)
	if cfg.Reranker.Host != "" {
		adapters.Reranker = true
	}

	gen := llm.NewAnthropicProvider(cfg.Generation)
	if cfg.Generation.APIKey != "" {
		adapters.Generation = true
	}

	deps := orchestrator.Dependencies{RAGIndex: cfg.VectorStore.Collection, LocalIndex: "local"}

	if rel != nil {
		deps.Member = handlers.NewMemberHandler(rel, cfg.Database.MembersTbl)
		deps.Deductible = handlers.NewDeductibleHandler(rel, cfg.Database.WideTableDB)
		deps.Accumulator = handlers.NewAccumulatorHandler(rel, cfg.Database.AccumulatorsTbl)
	}

	if buckets != nil && adapters.VectorStore {
		_ = ingest.NewIndexer(buckets, embed, vecOpen) // available for a future rag_prepare CLI surface
		deps.RAG = retrieve.NewEngine(embed, reranker, vecOpen, gen, cfg.Generation.Model)
	}

	local, err := localdoc.Open(ctx, cfg.LocalStore.DocsDir, cfg.LocalStore.Path, cfg.LocalStore.Dimension, gen, cfg.Generation.Model)
	if err != nil {
		pterm.Warning.Printf("local doc store unavailable: %v\n", err)
	} else {
		deps.LocalDoc = local
		adapters.LocalStore = true
		closers = append(closers, func() { _ = local.Close() })
	}

	o := orchestrator.New(gen, cfg.Generation.Model, deps, adapters, cfg.Session.MaxHistory)
	return o, cleanup, nil
}

func runREPL(ctx context.Context, o *orchestrator.Orchestrator) {
	const replSession = "repl"
	pterm.Success.Println("mbacore ready; type a query and press enter (ctrl-d to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ":history" {
			for _, h := range o.History(replSession) {
				fmt.Printf("  [%s] %s -> %s (ok=%v)\n", h.Timestamp.Format("15:04:05"), h.Intent, h.Agent, h.Success)
			}
			continue
		}
		if line == ":clear" {
			o.ClearHistory(replSession)
			continue
		}
		resp, err := o.Process(ctx, line, replSession, true)
		if err != nil {
			pterm.Error.Printf("process error: %v\n", err)
			continue
		}
		printResponse(resp)
	}
}

func printResponse(resp orchestrator.OrchestrationResponse) {
	payload, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		pterm.Error.Printf("marshal response: %v\n", err)
		return
	}
	if resp.Success {
		pterm.Success.Println(string(payload))
	} else {
		pterm.Error.Println(string(payload))
	}
}

func adapterSummary(adapters map[string]bool) string {
	var up []string
	for name, ok := range adapters {
		if ok {
			up = append(up, name)
		}
	}
	if len(up) == 0 {
		return "none"
	}
	return strings.Join(up, ", ")
}
