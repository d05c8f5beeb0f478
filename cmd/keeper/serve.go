package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nstogner/keeper/pkg/character"
	"github.com/nstogner/keeper/pkg/config"
	"github.com/nstogner/keeper/pkg/dice"
	"github.com/nstogner/keeper/pkg/gate"
	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/model/gemini"
	"github.com/nstogner/keeper/pkg/model/openai"
	"github.com/nstogner/keeper/pkg/retrieval"
	"github.com/nstogner/keeper/pkg/server"
	"github.com/nstogner/keeper/pkg/session"
	"github.com/nstogner/keeper/pkg/store/sqlite"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Keeper HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.db.Close()

			srv := server.New(app.db, app.db, app.db, app.provider, app.manager, slog.Default())
			return srv.Start(app.cfg.Addr)
		},
	}
}

// app bundles the wired-up components shared by the serve and chat commands.
type app struct {
	cfg      config.Config
	db       *sqlite.Store
	provider model.Provider
	manager  *session.Manager
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	table := dice.DefaultTable()
	if cfg.RulesPath != "" {
		if table, err = dice.LoadTable(cfg.RulesPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("loading rules: %w", err)
		}
	}

	deps := session.ToolDeps{
		Roller: dice.NewRoller(),
		Table:  table,
		Notes:  db,
	}
	if cfg.ModulePath != "" {
		doc, err := retrieval.LoadModuleDoc(cfg.ModulePath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("loading module: %w", err)
		}
		deps.Module = doc
	}
	if cfg.TavilyAPIKey != "" {
		deps.Web = retrieval.NewTavily(cfg.TavilyAPIKey)
	}
	if cfg.CharacterServiceURL != "" {
		deps.Characters = character.NewHTTPBuilder(cfg.CharacterServiceURL)
	}

	var source gate.Source
	switch cfg.ToolStyle {
	case "freetext":
		source = &gate.FreetextSource{Provider: provider}
	default:
		source = &gate.NativeSource{Provider: provider}
	}

	var summarizer *session.Summarizer
	if cfg.SummarizeAfter > 0 {
		summarizer = &session.Summarizer{
			Provider:   provider,
			Transcript: db,
			After:      cfg.SummarizeAfter,
			Log:        slog.Default(),
		}
	}

	manager := session.NewManager(db, db, db, source, deps, session.Options{
		MaxRounds:    cfg.MaxToolRounds,
		MaxRetries:   cfg.MaxRetries,
		ModelTimeout: cfg.ModelTimeout,
		ToolTimeout:  cfg.ToolTimeout,
		ToolAttempts: cfg.ToolAttempts,
		ToolBackoff:  cfg.ToolBackoff,
	}, summarizer, slog.Default())

	return &app{cfg: cfg, db: db, provider: provider, manager: manager}, nil
}

func buildProvider(ctx context.Context, cfg config.Config) (model.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return gemini.New(ctx, cfg.GeminiAPIKey)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
