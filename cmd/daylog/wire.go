package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/aggregate"
	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/config"
	"github.com/christopherklint97/daylog/internal/lifecycle"
	"github.com/christopherklint97/daylog/internal/msgraph"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/service"
	"github.com/christopherklint97/daylog/internal/sources"
	"github.com/christopherklint97/daylog/internal/store"
)

// app bundles everything a command needs. Close releases the database.
type app struct {
	cfg    *config.Config
	db     *store.DB
	svc    *service.Service
	logger *slog.Logger
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, debug bool) (*app, error) {
	logger := newLogger(debug)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.Open()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc := service.New(service.Config{
		Window:                  aggregate.Window{StartHour: cfg.Workday.StartHour, EndHour: cfg.Workday.EndHour},
		Location:                loc,
		TargetHours:             cfg.Workday.TargetHours,
		Language:                cfg.AI.Language,
		ModelTimeout:            cfg.ModelTimeout(),
		PerProjectActivityTypes: cfg.TimeTracking.PerProjectActivityTypes,
	}, service.Options{
		Fetchers:  newFetchers(cfg, logger),
		PM:        newTimeTracking(cfg, logger),
		Generator: gen,
		Journal:   db,
		Logger:    logger,
	})

	return &app{cfg: cfg, db: db, svc: svc, logger: logger}, nil
}

func newFetchers(cfg *config.Config, logger *slog.Logger) []sources.Fetcher {
	var fetchers []sources.Fetcher
	have := map[activity.Source]bool{}

	if cfg.Calendar.Enabled && cfg.Calendar.Source != "" {
		fetchers = append(fetchers, sources.NewCalendar(cfg.Calendar.Source, logger))
		have[activity.SourceCalendar] = true
	}

	if g := cfg.Graph; g.ClientID != "" && (g.Calendar || g.Mail) {
		auth, err := newGraphAuth(cfg, logger)
		if err != nil {
			logger.Warn("graph source disabled", "error", err)
		} else {
			client := msgraph.NewClient(auth, logger)
			if g.Calendar && !have[activity.SourceCalendar] {
				fetchers = append(fetchers, client.Calendar())
				have[activity.SourceCalendar] = true
			}
			if g.Mail {
				fetchers = append(fetchers, client.Mail())
				have[activity.SourceMail] = true
			}
		}
	}

	if cfg.GitHub.Enabled {
		token, err := sources.ResolveGitHubToken(cfg.GitHub.Token)
		if err != nil {
			logger.Warn("github source disabled", "error", err)
		} else {
			fetchers = append(fetchers, sources.NewGitHub(token, cfg.GitHub.Username, logger))
			have[activity.SourceCodeHost] = true
		}
	}

	if cfg.Import.Dir != "" {
		fetchers = append(fetchers, sources.ImportFetchers(cfg.Import.Dir, have)...)
	}
	return fetchers
}

func newGraphAuth(cfg *config.Config, logger *slog.Logger) (*msgraph.Auth, error) {
	path, err := msgraph.DefaultTokenPath()
	if err != nil {
		return nil, err
	}
	return msgraph.NewAuth(cfg.Graph.ClientID, cfg.Graph.TenantID, msgraph.FileTokenStore{Path: path}, logger), nil
}

// newTimeTracking returns nil when no backend is configured; the service
// then reports every project-data call as unauthenticated.
func newTimeTracking(cfg *config.Config, logger *slog.Logger) pm.Adapter {
	tt := cfg.TimeTracking
	if tt.Mock {
		return pm.NewMock(logger)
	}
	if tt.APIKey == "" || tt.Company == "" {
		return nil
	}
	return pm.NewClient(pm.ClientConfig{
		BaseURL:                 tt.BaseURL,
		APIKey:                  tt.APIKey,
		Company:                 tt.Company,
		UserID:                  tt.UserID,
		CacheTTL:                cfg.CacheTTL(),
		PerProjectActivityTypes: tt.PerProjectActivityTypes,
	}, logger)
}

// newGenerator returns nil for the heuristic provider.
func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ai.Generator, error) {
	switch cfg.AI.Provider {
	case "", "heuristic":
		return nil, nil
	case "openai":
		if cfg.AI.APIKey == "" {
			return nil, fmt.Errorf("openai provider needs [ai] api_key or OPENAI_API_KEY")
		}
		return ai.NewOpenAI(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, logger), nil
	case "gemini":
		if cfg.AI.APIKey == "" {
			return nil, fmt.Errorf("gemini provider needs [ai] api_key or GEMINI_API_KEY")
		}
		return ai.NewGemini(ctx, cfg.AI.APIKey, cfg.AI.Model, logger)
	case "claude-cli":
		return ai.NewClaudeCLI(cfg.AI.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}

func (a *app) newController() *lifecycle.Controller {
	return lifecycle.New(a.svc, lifecycle.Options{
		Cache:         lifecycle.NewStateCache(a.db, a.logger),
		SubmitEnglish: a.cfg.AI.SubmitEnglish,
		Logger:        a.logger,
	})
}
