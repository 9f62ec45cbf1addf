package cli

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/httpapi"
	"github.com/roach88/narrator/internal/pipeline"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	NoSweep bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		Long: `Serve the ingest and operator HTTP API and sweep the queue on an interval.

The sweeper recovers stale claims and processes due events, backing up
inline processing. Stops gracefully on SIGINT or SIGTERM.

Example:
  narrator serve --addr :8080
  NARRATOR_HTTP_TOKEN=secret narrator serve -c narrator.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&opts.NoSweep, "no-sweep", false, "disable the background sweeper")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := opts.Addr
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	if a.cfg.HTTP.Token == "" {
		a.logger.Warn("http.token is empty, operator endpoints are disabled")
	}

	srv := httpapi.New(a.pipeline, httpapi.Config{
		Token:        a.cfg.HTTP.Token,
		ProcessRPS:   a.cfg.HTTP.ProcessRPS,
		ProcessBurst: a.cfg.HTTP.ProcessBurst,
		Logger:       a.logger,
		Gatherer:     a.registry,
	})

	var wg sync.WaitGroup
	if !opts.NoSweep && a.cfg.Processor.SweepInterval > 0 {
		sweeper := pipeline.NewSweeper(a.pipeline,
			a.cfg.Processor.SweepInterval,
			a.cfg.Processor.StaleAfter,
			pipeline.Options{Limit: a.cfg.Processor.Limit, MaxMs: a.cfg.Processor.MaxMs},
			a.logger.Named("sweeper"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	err = srv.Run(ctx, addr)
	stop()
	wg.Wait()
	// Async runs started by enqueue requests still hold claimed events.
	a.pipeline.Wait()
	if err != nil {
		a.logger.Error("http server failed", zap.Error(err))
		return WrapExitError(ExitFailure, "serve", err)
	}
	a.logger.Info("shut down")
	return nil
}
