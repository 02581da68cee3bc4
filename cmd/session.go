package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/cache"
	"github.com/ghtracker/internal/capture"
	"github.com/ghtracker/internal/config"
	"github.com/ghtracker/internal/logging"
	"github.com/ghtracker/internal/providers/github"
	"github.com/ghtracker/internal/templates"
	"github.com/ghtracker/internal/tracker"
	"github.com/ghtracker/pkg/models"
)

// session is everything a command needs for one invocation
type session struct {
	cfg   *config.Config
	logs  *logging.RunLogger
	log   zerolog.Logger
	store *cache.Store
	usage *templates.Usage
	ctx   *cli.Context
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logs, err := logging.Setup(logging.Options{
		Dir:           cfg.Logging.Dir,
		Level:         cfg.Logging.Level,
		RetentionDays: cfg.Logging.RetentionDays,
		Verbose:       c.Bool("verbose"),
		Console:       c.App.ErrWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	opts := []cache.StoreOption{cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logs.Logger)}
	if !cfg.Cache.Enabled {
		opts = append(opts, cache.Disabled())
	}
	store, err := cache.NewStore(cfg.Cache.Dir, opts...)
	if err != nil {
		logs.Close()
		return nil, err
	}

	return &session{
		cfg:   cfg,
		logs:  logs,
		log:   logs.Logger.With().Str("command", c.Command.Name).Logger(),
		store: store,
		usage: templates.LoadUsage(cfg.Templates.UsageFile),
		ctx:   c,
	}, nil
}

func (s *session) Close() {
	if err := s.logs.Close(); err != nil {
		fmt.Fprintf(s.ctx.App.ErrWriter, "warning: failed to close log file: %v\n", err)
	}
}

// token resolves credentials once per session
func (s *session) token() (string, string) {
	return ResolveToken(s.ctx.Context, s.ctx.String("token"), s.cfg.GitHub.Token)
}

func (s *session) pipeline() (*tracker.Pipeline, error) {
	ghCfg := s.cfg.GitHub
	token, source := s.token()
	ghCfg.Token = token
	s.log.Debug().Str("token_source", source).Msg("credentials resolved")
	if source == TokenSourceNone {
		s.log.Warn().Msg("no GitHub token found, using anonymous requests")
	}

	httpClient := github.NewHTTPClient(ghCfg)
	if ghCfg.CaptureDir != "" {
		rec := capture.NewRecorder(ghCfg.CaptureDir, s.log, nil)
		httpClient.Transport = &capture.Transport{Base: httpClient.Transport, Recorder: rec}
		s.log.Info().Str("dir", rec.Dir()).Msg("capturing API responses")
	}

	client, err := github.New(ghCfg, httpClient)
	if err != nil {
		return nil, err
	}

	return tracker.NewPipeline(tracker.PipelineConfig{
		Source:     client,
		Store:      s.store,
		Policy:     s.cfg.Retry,
		MemorySize: s.cfg.Cache.MemorySize,
		MemoryTTL:  s.cfg.Cache.MemoryTTL,
		Logger:     s.log,
	}), nil
}

// loadTemplate resolves ref in the templates directory, loads it and records the use
func (s *session) loadTemplate(ref string) (string, *models.QueryDefinition, error) {
	path, err := templates.Resolve(s.cfg.Templates.Dir, ref)
	if err != nil {
		return "", nil, err
	}
	q, err := templates.Load(path)
	if err != nil {
		return "", nil, err
	}
	if err := s.usage.Touch(path, time.Now()); err != nil {
		s.log.Warn().Err(err).Msg("failed to record template usage")
	}
	return path, q, nil
}
