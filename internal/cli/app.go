package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/config"
	"github.com/roach88/narrator/internal/dispatch"
	"github.com/roach88/narrator/internal/logging"
	"github.com/roach88/narrator/internal/metrics"
	"github.com/roach88/narrator/internal/pipeline"
	"github.com/roach88/narrator/internal/store"
)

// app is the wiring shared by every command that touches the queue.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	registry *prometheus.Registry
	pipeline *pipeline.Pipeline
	redis    *redis.Client
	out      *OutputFormatter
}

// newFormatter builds the output formatter for cmd.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openApp loads config, opens the store and wires the pipeline.
// The caller must call close.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	var storeOpts []store.Option
	if !cfg.Database.AutoMigrate {
		storeOpts = append(storeOpts, store.WithoutMigrations())
	}
	logger.Debug("opening database", zap.String("path", cfg.Database.Path))
	st, err := store.Open(cfg.Database.Path, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: prometheus.NewRegistry(),
		out:      newFormatter(opts, cmd),
	}

	push, err := a.pushSender()
	if err != nil {
		a.close()
		return nil, err
	}

	a.pipeline = pipeline.New(st, push,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics.New(a.registry)),
	)
	return a, nil
}

func (a *app) pushSender() (dispatch.PushSender, error) {
	switch a.cfg.Push.Transport {
	case config.TransportRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Push.RedisAddr})
		return dispatch.NewRedisPushSender(a.redis, a.cfg.Push.RedisPrefix), nil
	case config.TransportLog:
		return dispatch.NewLogPushSender(a.logger), nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown push transport %q", a.cfg.Push.Transport))
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
