// Command echoforge runs an interactive narrative session on the terminal:
// it loads a scenario, wires the generation oracle and memory bank, and
// drives the story turn by turn from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kodackx/echo-forge-ai/internal/config"
	"github.com/kodackx/echo-forge-ai/internal/observe"
	"github.com/kodackx/echo-forge-ai/internal/persistence"
	"github.com/kodackx/echo-forge-ai/internal/resilience"
	"github.com/kodackx/echo-forge-ai/internal/scenario"
	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/memory"
	"github.com/kodackx/echo-forge-ai/pkg/memory/pgvector"
	"github.com/kodackx/echo-forge-ai/pkg/oracle"
	"github.com/kodackx/echo-forge-ai/pkg/provider/embeddings"
	emock "github.com/kodackx/echo-forge-ai/pkg/provider/embeddings/mock"
	oaembed "github.com/kodackx/echo-forge-ai/pkg/provider/embeddings/openai"
	"github.com/kodackx/echo-forge-ai/pkg/provider/llm"
	"github.com/kodackx/echo-forge-ai/pkg/provider/llm/anyllm"
	lmock "github.com/kodackx/echo-forge-ai/pkg/provider/llm/mock"
	"github.com/kodackx/echo-forge-ai/pkg/story"

	"github.com/google/uuid"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	scenarioPath := flag.String("scenario", "", "scenario file; overrides story.scenario_path from the config")
	sessionID := flag.String("session", "default", "session identifier used by save/load")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "echoforge: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "echoforge: %v\n", err)
		}
		return 1
	}
	if *scenarioPath != "" {
		cfg.Story.ScenarioPath = *scenarioPath
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("echoforge starting",
		"config", *configPath,
		"session", *sessionID,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var turnObs *observe.TurnObserver
	if cfg.Telemetry.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("telemetry shutdown error", "err", err)
			}
		}()

		if cfg.Telemetry.MetricsAddr != "" {
			go serveMetrics(cfg.Telemetry.MetricsAddr, logger)
		}
		turnObs = observe.NewTurnObserver(observe.DefaultMetrics(), logger)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	llmProvider, err := buildLLM(cfg, logger)
	if err != nil {
		logger.Error("failed to build LLM provider", "err", err)
		return 1
	}
	embedder := buildEmbedder(cfg, logger)

	var gen observe.GenerationBackend = oracle.New(llmProvider, oracle.WithLogger(logger))
	if cfg.Telemetry.Enabled {
		gen = observe.NewInstrumentedOracle(gen, observe.DefaultMetrics())
	}

	// ── Scenario ──────────────────────────────────────────────────────────────
	var sc *scenario.Scenario
	if cfg.Story.ScenarioPath != "" {
		sc, err = scenario.Load(cfg.Story.ScenarioPath)
		if err != nil {
			logger.Error("failed to load scenario", "err", err)
			return 1
		}
		if cfg.Story.Title == "" {
			cfg.Story.Title = sc.Title
		}
		if cfg.Story.Description == "" {
			cfg.Story.Description = sc.Description
		}
	}

	sess := &session{
		cfg:      cfg,
		logger:   logger,
		gen:      gen,
		embedder: embedder,
		obs:      turnObs,
	}

	st, err := sess.newStory(ctx, sc)
	if err != nil {
		logger.Error("failed to build story", "err", err)
		return 1
	}

	// ── Persistence ───────────────────────────────────────────────────────────
	var repo *persistence.Repository
	if cfg.Persistence.SQLitePath != "" {
		repo, err = persistence.Open(cfg.Persistence.SQLitePath)
		if err != nil {
			logger.Error("failed to open session store", "err", err)
			return 1
		}
		defer repo.Close()
	}

	// ── Run the session ───────────────────────────────────────────────────────
	if err := sess.repl(ctx, st, repo, *sessionID); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session error", "err", err)
		return 1
	}
	logger.Info("goodbye")
	return 0
}

// session bundles the long-lived collaborators so a saved story can be
// reloaded into fresh bank and graph instances mid-run. obs is nil when
// telemetry is disabled.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	gen      observe.GenerationBackend
	embedder embeddings.Provider
	obs      *observe.TurnObserver
}

// newDeps creates a fresh set of story collaborators. Each story instance
// owns its own bank and graph; the oracle and embedder are shared.
func (s *session) newDeps(ctx context.Context) (story.Deps, error) {
	var index memory.Index
	if dsn := s.cfg.Memory.PostgresDSN; dsn != "" {
		pgIdx, err := pgvector.Open(ctx, pgvector.Config{
			URL:        dsn,
			Dimensions: s.cfg.Memory.EmbeddingDimensions,
		})
		if err != nil {
			return story.Deps{}, fmt.Errorf("open pgvector index: %w", err)
		}
		index = pgIdx
	} else {
		index = memory.NewFlatIndex()
	}

	bank := memory.NewBank(s.embedder, index, memory.BankConfig{
		MaxItems:     s.cfg.Memory.MaxMemories,
		EmbeddingDim: s.cfg.Memory.EmbeddingDimensions,
	})
	g := graph.New(graph.Config{MaxLiveNodes: s.cfg.Graph.MaxLiveNodes},
		graph.WithLogger(s.logger),
		graph.WithSummariser(s.gen),
	)

	// A typed-nil observer must not reach the story as a non-nil interface.
	var observer story.Observer
	if s.obs != nil {
		observer = s.obs
	}

	return story.Deps{
		Bank:            bank,
		Graph:           g,
		Oracle:          s.gen,
		CharacterOracle: s.gen,
		Observer:        observer,
		Logger:          s.logger,
	}, nil
}

// newStory builds a story from the scenario, or a single blank opening scene
// when no scenario is configured.
func (s *session) newStory(ctx context.Context, sc *scenario.Scenario) (*story.Story, error) {
	deps, err := s.newDeps(ctx)
	if err != nil {
		return nil, err
	}

	var cast []*character.Character
	if sc != nil {
		g, built, err := scenario.Build(sc, graph.Config{MaxLiveNodes: s.cfg.Graph.MaxLiveNodes},
			graph.WithLogger(s.logger),
			graph.WithSummariser(s.gen),
		)
		if err != nil {
			return nil, err
		}
		deps.Graph = g
		cast = built
	} else {
		opening := graph.NewNode(s.cfg.Story.Title, s.cfg.Story.Description, graph.AsEntryPoint())
		deps.Graph.AddNode(opening)
	}

	st, err := story.New(story.Config{
		Title:            s.cfg.Story.Title,
		Description:      s.cfg.Story.Description,
		RetrievalLimit:   s.cfg.Story.RetrievalLimit,
		SummaryWindow:    s.cfg.Story.SummaryWindow,
		MatchThreshold:   s.cfg.Story.MatchThreshold,
		EnableMonologues: s.cfg.Story.EnableMonologues,
	}, deps)
	if err != nil {
		return nil, err
	}

	for _, ch := range cast {
		if err := st.AddCharacter(ctx, ch); err != nil {
			return nil, err
		}
	}
	if s.obs != nil {
		s.obs.StoryOpened()
	}
	return st, nil
}

// ── Interactive loop ──────────────────────────────────────────────────────────

func (s *session) repl(ctx context.Context, st *story.Story, repo *persistence.Repository, sessionID string) error {
	beat, err := st.Start(ctx, uuid.Nil)
	if err != nil {
		return fmt.Errorf("start story: %w", err)
	}
	printBeat(beat)
	fmt.Println(`Type a choice (or its number), or "save", "load", "sessions", "quit".`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit":
			return nil

		case "save":
			if repo == nil {
				fmt.Println("Saving is disabled; set persistence.sqlite_path in the config.")
				continue
			}
			if err := repo.Save(ctx, sessionID, st.SaveState()); err != nil {
				fmt.Printf("Save failed: %v\n", err)
				continue
			}
			fmt.Printf("Saved session %q.\n", sessionID)
			continue

		case "load":
			if repo == nil {
				fmt.Println("Loading is disabled; set persistence.sqlite_path in the config.")
				continue
			}
			snapshot, err := repo.Load(ctx, sessionID)
			if err != nil {
				fmt.Printf("Load failed: %v\n", err)
				continue
			}
			deps, err := s.newDeps(ctx)
			if err != nil {
				fmt.Printf("Load failed: %v\n", err)
				continue
			}
			restored, err := story.Load(ctx, snapshot, deps)
			if err != nil {
				fmt.Printf("Load failed: %v\n", err)
				continue
			}
			if s.obs != nil {
				s.obs.StoryClosed(len(st.Characters()))
				s.obs.StoryOpened()
			}
			st = restored
			fmt.Printf("Restored session %q.\n", sessionID)
			// Resume at the saved position; fall back to the entry node
			// when the snapshot predates the first turn.
			if b, err := st.Current(); err == nil {
				beat = b
			} else if beat, err = st.Start(ctx, uuid.Nil); err != nil {
				fmt.Printf("Resume failed: %v\n", err)
				continue
			}
			printBeat(beat)
			continue

		case "sessions":
			if repo == nil {
				fmt.Println("No session store configured.")
				continue
			}
			sessions, err := repo.List(ctx)
			if err != nil {
				fmt.Printf("List failed: %v\n", err)
				continue
			}
			if len(sessions) == 0 {
				fmt.Println("No saved sessions.")
			}
			for _, info := range sessions {
				fmt.Printf("  %s  %q  saved %s\n",
					info.SessionID, info.Title, info.SavedAt.Format(time.RFC3339))
			}
			continue
		}

		// A bare number selects the corresponding choice.
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(beat.Choices) {
			input = beat.Choices[n-1]
		}

		next, err := st.Advance(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Printf("The story falters: %v\n", err)
			continue
		}
		beat = next
		printBeat(beat)
	}
}

func printBeat(beat story.Beat) {
	fmt.Println()
	fmt.Println(beat.Text)
	fmt.Println()
	if len(beat.Choices) == 0 {
		fmt.Println("The story has reached an end.")
		return
	}
	fmt.Println("What would you like to do?")
	for i, choice := range beat.Choices {
		fmt.Printf("%d. %s\n", i+1, choice)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildLLM constructs the primary LLM backend, wraps it with retry and
// circuit-breaker behaviour, and attaches any configured fallbacks.
func buildLLM(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := newLLMBackend(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	logger.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	resilient := resilience.NewResilientLLM(cfg.Providers.LLM.Name, primary,
		resilience.RetryConfig{
			Attempts: cfg.Resilience.RetryAttempts,
			Backoff:  cfg.Resilience.RetryBackoffDuration(),
			Logger:   logger,
		},
		resilience.BreakerConfig{
			Trip:     cfg.Resilience.BreakerTrip,
			Cooldown: cfg.Resilience.BreakerCooldownDuration(),
			Logger:   logger,
		},
	)
	for _, entry := range cfg.Providers.Fallbacks {
		fb, err := newLLMBackend(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback llm provider %q: %w", entry.Name, err)
		}
		resilient.AddFallback(entry.Name, fb)
		logger.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
	}
	return resilient, nil
}

// newLLMBackend constructs one LLM backend from a provider entry. The "mock"
// name yields a scripted offline backend for demos and smoke tests.
func newLLMBackend(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "":
		return nil, errors.New("providers.llm.name is required")
	case "mock":
		return &lmock.Provider{Responses: []string{mockBeatJSON}}, nil
	case "ollama":
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

// buildEmbedder constructs the embeddings backend, falling back to the
// deterministic mock when none is configured.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) embeddings.Provider {
	entry := cfg.Providers.Embeddings
	if entry.Name == "openai" {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		p, err := oaembed.New(entry.APIKey, entry.Model, opts...)
		if err == nil {
			logger.Info("provider created", "kind", "embeddings", "name", entry.Name, "model", entry.Model)
			return p
		}
		logger.Warn("embeddings provider failed, using mock vectors", "err", err)
	}
	if entry.Name != "" && entry.Name != "mock" && entry.Name != "openai" {
		logger.Warn("unsupported embeddings provider, using mock vectors", "name", entry.Name)
	}
	return &emock.Provider{Dim: cfg.Memory.EmbeddingDimensions}
}

// mockBeatJSON is returned by the offline mock backend for every turn.
const mockBeatJSON = `{
  "text": "The scene unfolds quietly around you, waiting for your next move.",
  "choices": ["Look around", "Press on"],
  "metadata": {}
}`

// ── Metrics endpoint ──────────────────────────────────────────────────────────

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint error", "err", err)
	}
}
