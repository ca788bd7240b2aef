package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/d3vah/askdocs-go/internal/logging"
	"github.com/d3vah/askdocs-go/internal/provider"
	"github.com/d3vah/askdocs-go/internal/rag"
	"github.com/d3vah/askdocs-go/internal/server"
	"github.com/d3vah/askdocs-go/internal/store"
	"github.com/d3vah/askdocs-go/internal/tracing"
)

// NewServeCmd constructs the `askdocs serve` command, which starts the HTTP
// server exposing the ask and search API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdocs HTTP server",
		Long: `Start the askdocs HTTP server on localhost.

The server exposes POST /api/ask (SSE answer stream), POST /api/search
(raw hybrid search), health and readiness probes, and Prometheus metrics.
Protected routes require a Bearer token when ASKDOCS_API_KEY is set.

Examples:
  askdocs serve
  askdocs serve --port 9090
  MODEL_PROVIDER=azure askdocs serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			emb, err := buildQueryEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			client, err := buildSearchClient(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open conversation history store. ASKDOCS_HISTORY_DB overrides the
			// default path (~/.askdocs/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("ASKDOCS_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via ASKDOCS_HISTORY_DB=disabled")
			}

			pipeline, err := rag.New(&rag.Config{
				Embedder:     emb,
				Searcher:     client,
				ChatModel:    chatModel,
				History:      historyStore,
				HistoryScope: getEnvOrDefault("OPENSEARCH_INDEX", "askdocs"),
				HistoryDepth: getEnvInt("ASKDOCS_HISTORY_DEPTH", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise pipeline: %w", err)
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
				server.NewSearchPinger(client),
			}

			srv, err := server.New(pipeline, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("ASKDOCS_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
