package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/pipeline"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	LobbyID     string
	Limit       int
	MaxMs       int
	NewestFirst bool
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process eligible queued events",
		Long: `Claim and process eligible events until the limit or time budget is spent.

Safe to run concurrently with a server or other process commands.

Example:
  narrator process --lobby L1 --limit 100
  narrator process --newest-first --max-ms 5000 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LobbyID, "lobby", "", "only process events of this lobby")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events to process (default from config)")
	cmd.Flags().IntVar(&opts.MaxMs, "max-ms", 0, "time budget in milliseconds (default from config)")
	cmd.Flags().BoolVar(&opts.NewestFirst, "newest-first", false, "process newest events first")

	return cmd
}

func runProcess(opts *ProcessOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	popts := pipeline.Options{
		LobbyID:     opts.LobbyID,
		Limit:       firstPositive(opts.Limit, a.cfg.Processor.Limit),
		MaxMs:       firstPositive(opts.MaxMs, a.cfg.Processor.MaxMs),
		NewestFirst: opts.NewestFirst,
	}
	a.out.VerboseLog("processing: lobby=%q limit=%d max_ms=%d", popts.LobbyID, popts.Limit, popts.MaxMs)

	start := time.Now()
	stats, err := a.pipeline.ProcessQueue(cmd.Context(), popts)
	if err != nil {
		return a.out.Fail("process", err)
	}
	a.out.VerboseLog("done in %s", time.Since(start).Round(time.Millisecond))
	return a.out.Success(stats, formatStats(stats))
}

func formatStats(s pipeline.Stats) string {
	return fmt.Sprintf("Processed %d of %d dequeued: %d emitted, %d budget-skipped, %d duplicates, %d failed, %d dead",
		s.Processed, s.Dequeued, s.Emitted, s.SkippedBudget, s.SkippedDedupe, s.Failed, s.Dead)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
