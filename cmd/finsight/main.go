// Command finsight is the entry point: a small cobra CLI over the same
// components the teacher's cmd/api/main.go wires by hand (agent
// manager, handler registration, http.ListenAndServe), generalized into
// subcommands so `migrate` and a local `ingest` can share the wiring
// `serve` uses instead of duplicating main() per binary the way the
// teacher split cmd/api, cmd/pipeline and cmd/pipeline_demo.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"finsight/pkg/api"
	"finsight/pkg/config"
	"finsight/pkg/embedding"
	"finsight/pkg/ingest"
	"finsight/pkg/llm"
	"finsight/pkg/orchestrator"
	"finsight/pkg/store"
	"finsight/pkg/vectorindex"
)

var agentConfigPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	root := &cobra.Command{
		Use:   "finsight",
		Short: "Privacy-preserving multi-agent financial document analysis",
	}
	root.PersistentFlags().StringVar(&agentConfigPath, "agent-config", "config/agents.yaml", "per-agent model override file")

	root.AddCommand(serveCmd(), migrateCmd(), ingestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadAgentOverrides reads the per-agent model override YAML, the way
// the teacher reads config/models.yaml via yaml.Unmarshal in
// cmd/api/main.go. viper is used only to check that the file can be
// read and parsed; the returned table comes from yaml.Unmarshal of the
// file alone, and environment variables are not applied to it.
func loadAgentOverrides(path string) config.AgentModelConfig {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FINSIGHT")
	v.AutomaticEnv()

	var cfg config.AgentModelConfig
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			log.Warn().Str("component", "cmd").Err(err).Msg("failed to parse agent config, using defaults")
		}
		return cfg
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Warn().Str("component", "cmd").Err(err).Msg("failed to unmarshal agent config")
	}
	return cfg
}

type wiring struct {
	gateway      *llm.Gateway
	embedder     *embedding.Service
	index        *vectorindex.Index
	repo         *store.WorkspaceRepo
	orchestrator *orchestrator.Orchestrator
	cfg          *config.Config
}

func wireComponents(ctx context.Context, cfg *config.Config) (*wiring, error) {
	gateway := llm.NewGateway(cfg.BaseURL())
	embedder := embedding.NewService(cfg.BaseURL(), "", cfg.VectorDir)
	index := vectorindex.NewIndex(embedder, cfg.VectorDir)

	if err := store.InitDB(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	cache := store.NewCache(cfg.RedisAddr, cfg.CacheTTL)
	repo := store.NewWorkspaceRepo(store.GetPool(), cache, index, cfg.UploadsDir)

	orch := &orchestrator.Orchestrator{
		Gateway:      gateway,
		Index:        index,
		Results:      repo,
		Chats:        repo,
		Statements:   repo,
		Concurrency:  cfg.AgentConcurrency,
		PrimaryModel: cfg.PrimaryModel,
		Models:       loadAgentOverrides(agentConfigPath),
	}

	return &wiring{gateway: gateway, embedder: embedder, index: index, repo: repo, orchestrator: orch, cfg: cfg}, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP + WebSocket API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			w, err := wireComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			router := api.NewRouter(api.Deps{
				Gateway:       w.gateway,
				Embedder:      w.embedder,
				Index:         w.index,
				Repo:          w.repo,
				Orchestrator:  w.orchestrator,
				RouterModel:   cfg.RouterModel,
				VisionModel:   cfg.VisionModel,
				MaxFileSizeMB: cfg.MaxFileSizeMB,
				UploadsDir:    cfg.UploadsDir,
			})

			log.Info().Str("component", "cmd").Str("addr", addr).Msg("finsight API server starting")
			fmt.Printf("finsight API server listening on %s\n", addr)

			if err := http.ListenAndServe(addr, router); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Workspace Store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := cmd.Context()
			if err := store.InitDB(ctx, cfg.DatabaseURL); err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			if err := store.Migrate(ctx, store.GetPool()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("schema applied")
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a single document outside the HTTP API, for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			w, err := wireComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			pipeline := &ingest.Pipeline{
				Gateway:     w.gateway,
				Index:       w.index,
				Embedder:    w.embedder,
				VisionModel: cfg.VisionModel,
				UploadsDir:  cfg.UploadsDir,
			}

			uploadID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
			result, err := pipeline.Ingest(cmd.Context(), uploadID, userID, filepath.Base(args[0]), raw)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("upload_id=%s document_type=%s rows=%d warnings=%v\n", uploadID, result.DocumentType, result.RowCount, result.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli-user", "user id to tag the ingested document with")
	return cmd
}
