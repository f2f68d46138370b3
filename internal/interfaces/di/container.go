package di

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/application/services"
	"maadoctor.app/cli/internal/detectors"
	"maadoctor.app/cli/internal/infrastructure/ai"
	"maadoctor.app/cli/internal/infrastructure/archive"
	"maadoctor.app/cli/internal/infrastructure/cache"
	"maadoctor.app/cli/internal/infrastructure/config"
	"maadoctor.app/cli/internal/infrastructure/logging"
	"maadoctor.app/cli/internal/infrastructure/plugins"
	"maadoctor.app/cli/internal/infrastructure/source"
	"maadoctor.app/cli/internal/interfaces/cli"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	Config *config.Config
	Logger hclog.Logger

	// Infrastructure
	Store     *cache.FileStore
	Backend   ports.SourceBackend
	Launcher  *plugins.Launcher
	Extractor *archive.Extractor
	Reviewer  *ai.Client

	// Application services
	Scripts  *services.ScriptManager
	Engine   *services.ExecutionEngine
	Resolver *services.SolutionResolver
	Analysis *services.AnalysisService

	// CLI
	CLIContainer *cli.CLIContainer
}

// NewContainer creates the container. Components are built by Initialize
// once the command line has been parsed.
func NewContainer() *Container {
	c := &Container{Logger: hclog.NewNullLogger()}
	c.CLIContainer = &cli.CLIContainer{
		Logger:     c.Logger,
		Initialize: c.Initialize,
		Shutdown:   c.Shutdown,
	}
	return c
}

// Initialize loads the configuration and wires every component.
func (c *Container) Initialize(configPath string, overrides map[string]any) error {
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return err
	}
	c.Config = cfg

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		return err
	}
	c.Logger = logger
	if cfg.File != "" {
		logger.Debug("loaded config file", "path", cfg.File)
	}

	// 1. Infrastructure
	c.Store, err = cache.NewFileStore(cfg.Cache.Dir, logger)
	if err != nil {
		return err
	}
	if err := c.initializeBackend(); err != nil {
		return err
	}
	c.Extractor = archive.NewExtractor(cfg.Work.Dir, logger)

	// 2. Application services
	var launcher ports.PluginLauncher
	if c.Backend.Location() == ports.LocationLocal {
		c.Launcher = plugins.NewLauncher(logger)
		launcher = c.Launcher
	}
	reviewer, err := c.initializeReviewer()
	if err != nil {
		return err
	}
	c.Scripts = services.NewScriptManager(c.Backend, c.Store, detectors.NewRegistry(reviewer), launcher, logger)
	c.Engine = services.NewExecutionEngine(cfg.Engine.Workers, cfg.Engine.Timeout, logger)
	c.Resolver = services.NewSolutionResolver(c.Backend, c.Store, logger)
	c.Analysis = services.NewAnalysisService(c.Scripts, c.Engine, c.Resolver, c.Extractor, logger)

	// 3. CLI
	c.CLIContainer.Config = cfg
	c.CLIContainer.Logger = logger
	c.CLIContainer.CacheStore = c.Store
	c.CLIContainer.ScriptManager = c.Scripts
	c.CLIContainer.AnalysisService = c.Analysis

	logger.Debug("container initialized", "source", c.Backend.String(), "workers", cfg.Engine.Workers)
	return nil
}

// initializeReviewer returns nil when no AI endpoint is configured; rules
// using ai-review then fail to load with a diagnostic.
func (c *Container) initializeReviewer() (detectors.Reviewer, error) {
	cfg := c.Config.AI
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := ai.NewClient(ai.Options{
		URL:         cfg.URL,
		Key:         cfg.Key,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}
	c.Reviewer = client
	if c.Config.Engine.Timeout < cfg.Timeout {
		c.Logger.Warn("engine.timeout is shorter than ai.timeout, ai-review may be cut off",
			"engine_timeout", c.Config.Engine.Timeout, "ai_timeout", cfg.Timeout)
	}
	return client, nil
}

func (c *Container) initializeBackend() error {
	cfg := c.Config
	switch cfg.Source.Mode {
	case config.ModeRemote:
		fetcher, err := source.NewFetcher(cfg.Source.URL, source.FetcherOptions{
			Timeout: cfg.Fetch.Timeout,
			Retries: cfg.Fetch.Retries,
			Logger:  c.Logger,
		})
		if err != nil {
			return err
		}
		c.Backend = source.NewRemoteBackend(fetcher, c.Store, c.Logger)
	case config.ModeLocal:
		if cfg.Source.Layout == config.LayoutIndex {
			c.Backend = source.NewIndexBackend(cfg.Source.Path, c.Logger)
		} else {
			c.Backend = source.NewFolderBackend(cfg.Source.Path, c.Logger)
		}
	default:
		return fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
	return nil
}

// Shutdown stops plugin processes. Extracted archives are removed by the
// analyze command itself so that --keep can retain them.
func (c *Container) Shutdown() error {
	if c.Scripts == nil {
		return nil
	}
	return c.Scripts.Close()
}

// Cancel stops the running analysis batch, if any.
func (c *Container) Cancel() {
	if c.Analysis != nil {
		c.Analysis.Cancel()
	}
}

// HealthCheck reports components that were not wired.
func (c *Container) HealthCheck() error {
	var errs []error
	if c.Config == nil {
		errs = append(errs, errors.New("configuration not loaded"))
	}
	if c.Backend == nil {
		errs = append(errs, errors.New("script source not initialized"))
	}
	if c.Analysis == nil {
		errs = append(errs, errors.New("analysis service not initialized"))
	}
	return errors.Join(errs...)
}
