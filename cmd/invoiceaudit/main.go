// Package main is the invoiceaudit CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/config"
	"github.com/openclerk/invoiceaudit/internal/crosscheck"
	"github.com/openclerk/invoiceaudit/internal/embedding"
	"github.com/openclerk/invoiceaudit/internal/extract"
	"github.com/openclerk/invoiceaudit/internal/inbox"
	"github.com/openclerk/invoiceaudit/internal/llm"
	"github.com/openclerk/invoiceaudit/internal/models"
	"github.com/openclerk/invoiceaudit/internal/pipeline"
	"github.com/openclerk/invoiceaudit/internal/rag"
	"github.com/openclerk/invoiceaudit/internal/refdata"
	"github.com/openclerk/invoiceaudit/internal/report"
	"github.com/openclerk/invoiceaudit/internal/server"
	"github.com/openclerk/invoiceaudit/internal/standardize"
	"github.com/openclerk/invoiceaudit/internal/storage"
	"github.com/openclerk/invoiceaudit/internal/vector"
	"github.com/openclerk/invoiceaudit/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/invoiceaudit/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so "invoiceaudit run" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Service credentials (API keys for the completion and standardizer
	// endpoints) come from the environment; a .env file is optional.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "run":
		runNode(false)
	case "server":
		runNode(true)
	case "ask":
		runAsk()
	case "check":
		runCheck()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("invoiceaudit version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runNode starts the scan/process/archive loop, and the HTTP API when withAPI
// is set, then blocks until SIGINT/SIGTERM.
func runNode(withAPI bool) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (stage transitions, chunking, retrieval)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	scheduler, err := inbox.NewScheduler(cfg.Inbox.Directory, cfg.Inbox.ArchiveDirectory, cfg.Inbox.Extensions,
		inbox.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to initialize inbox scheduler", zap.Error(err))
	}

	reporter, err := report.NewWriter(cfg.Reports.Directory, report.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to initialize report writer", zap.Error(err))
	}

	timeout := time.Duration(cfg.Services.TimeoutSeconds) * time.Second
	orchestrator := pipeline.NewOrchestrator(
		extract.NewExtractor(),
		standardize.NewClient(cfg.Services.StandardizerURL, timeout),
		components.Checker,
		pipeline.WithLogger(logger),
		pipeline.WithIngestor(components.Knowledge),
		pipeline.WithReporter(reporter),
		pipeline.WithStorage(components.Storage),
	)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	notifier := inbox.NewNotifier(cfg.Inbox.Directory, logger)
	if err := notifier.Start(runCtx); err != nil {
		// Polling alone still picks up new documents, just slower.
		logger.Warn("inbox notifier unavailable, relying on polling", zap.Error(err))
	}

	runner := pipeline.NewRunner(scheduler, orchestrator,
		time.Duration(cfg.Inbox.PollSeconds)*time.Second,
		pipeline.WithRunnerLogger(logger),
		pipeline.WithNudges(notifier.Nudges()),
	)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		_ = runner.Run(runCtx)
	}()

	var srv *server.Server
	if withAPI {
		srv = server.NewServer(components.Knowledge, components.Checker,
			components.RefData, components.Storage, components.VectorIndex, cfg, logger)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	runCancel()
	select {
	case <-runnerDone:
	case <-time.After(30 * time.Second):
		logger.Warn("runner did not stop in time")
	}
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local components when server is not running)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: invoiceaudit ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: invoiceaudit ask [flags] <question>")
		os.Exit(1)
	}

	var answer *models.Answer
	if *serverURL != "" {
		// Use the HTTP API when the node is running (avoids a SQLite lock conflict).
		res, err := askViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		answer = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		answer, err = components.Knowledge.Ask(context.Background(), question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Println(answer.Answer)
		if answer.Evaluation != nil {
			fmt.Printf("\n# evaluation: overall %.2f, passing %t\n",
				answer.Evaluation.OverallScore, answer.Evaluation.IsPassing)
		}
		for _, c := range answer.Context {
			fmt.Printf("# source: %s (score %.3f)\n", c.Metadata["filename"], c.Score)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, question string) (*models.Answer, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func runCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	currency := fs.String("currency", "USD", "line item currency")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: invoiceaudit check [flags] <item-code> <unit-price>")
		os.Exit(1)
	}
	itemCode := fs.Arg(0)
	unitPrice, err := strconv.ParseFloat(fs.Arg(1), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid unit price %q: %v\n", fs.Arg(1), err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Cross-checking needs only the read-only reference data, so no server
	// round-trip and no shared storage.
	store, err := refdata.NewJSONStore(cfg.RefData.Directory, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load reference data: %v\n", err)
		os.Exit(1)
	}
	result := crosscheck.NewEngine(store).CheckLineItem(itemCode, unitPrice, *currency)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents         int64            `json:"documents"`
	DocumentsByStatus map[string]int64 `json:"documents_by_status,omitempty"`
	Chunks            int64            `json:"chunks"`
	VectorIndexSize   int              `json:"vector_index_size"`
	Config            map[string]any   `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		counts, err := components.Storage.CountRecordsByStatus(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count records failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		byStatus := make(map[string]int64, len(counts))
		var total int64
		for st, n := range counts {
			byStatus[string(st)] = n
			total += n
		}
		status = statusResponse{
			Documents:         total,
			DocumentsByStatus: byStatus,
			Chunks:            chunkCount,
			VectorIndexSize:   components.VectorIndex.Size(),
			Config: map[string]any{
				"inbox_directory":      cfg.Inbox.Directory,
				"archive_directory":    cfg.Inbox.ArchiveDirectory,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"chunk_size":           cfg.Knowledge.ChunkSize,
				"chunk_overlap":        cfg.Knowledge.ChunkOverlap,
				"top_k":                cfg.Knowledge.TopK,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:          %d   # processed documents on record\n", status.Documents)
		for st, n := range status.DocumentsByStatus {
			fmt.Printf("  %-17s %d\n", st+":", n)
		}
		fmt.Printf("chunks:             %d   # knowledge chunks persisted\n", status.Chunks)
		fmt.Printf("vector_index_size:  %d   # vectors in the semantic index\n", status.VectorIndexSize)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services shared by the subcommands.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	RefData     refdata.Store
	Checker     *crosscheck.Engine
	Knowledge   *rag.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := embedding.New(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
		logger,
	)

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	refStore, err := refdata.NewJSONStore(cfg.RefData.Directory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	timeout := time.Duration(cfg.Services.TimeoutSeconds) * time.Second
	completer := llm.NewHTTPClient(cfg.Services.CompletionURL, cfg.Services.CompletionModel, timeout)

	knowledge := rag.NewEngine(embedder, vectorIndex, completer,
		rag.WithLogger(logger),
		rag.WithChunking(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap),
		rag.WithTopK(cfg.Knowledge.TopK),
		rag.WithMinPassScore(cfg.Knowledge.MinPassScore),
		rag.WithStorage(store),
	)

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
		RefData:     refStore,
		Checker:     crosscheck.NewEngine(refStore),
		Knowledge:   knowledge,
	}, nil
}

func printUsage() {
	fmt.Println(`invoiceaudit - Multilingual invoice auditing node

Usage:
  invoiceaudit run [flags]                 Start the inbox processing loop
  invoiceaudit server [flags]              Processing loop plus the HTTP API
  invoiceaudit ask [flags] <question>      Ask the knowledge base a question
  invoiceaudit check [flags] <sku> <price> Cross-check one line item
  invoiceaudit status [flags]              Show processing/storage/index status
  invoiceaudit version                     Show version
  invoiceaudit help                        Show this help

Run/Server Flags:
  --config string    Config file path (default: /usr/local/etc/invoiceaudit/config.yaml)
  --debug            Enable debug logging (stage transitions, chunking, retrieval)

Ask Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") when the node is not running.
  --output string    Output format: text or json (default: text)

Check Flags:
  --config string    Config file path
  --currency string  Line item currency (default: USD)

Status Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for local storage.
  --output string    Output format: text or json (default: text)

Examples:
  invoiceaudit server
  invoiceaudit ask "Which invoices mention expedited shipping?"
  invoiceaudit check SKU-2201 12.50
  invoiceaudit status --output json`)
}
