package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewRequeueCommand creates the requeue command.
func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <event-id>",
		Short: "Reset a dead or failed event to queued",
		Long: `Reset a dead or failed event to queued with zero attempts.

Effects already claimed in the dedupe ledger are not repeated.

Example:
  narrator requeue 0192f3c4-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.pipeline.Requeue(cmd.Context(), args[0]); err != nil {
				return a.out.Fail("requeue", err)
			}
			return a.out.Success(map[string]any{"eventId": args[0], "requeued": true},
				fmt.Sprintf("Requeued %s", args[0]))
		},
	}
}

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	OlderThan time.Duration
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Release stale processing claims",
		Long: `Return events stuck in processing for longer than --older-than to failed,
eligible immediately.

Example:
  narrator recover --older-than 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			olderThan := opts.OlderThan
			if olderThan <= 0 {
				olderThan = a.cfg.Processor.StaleAfter
			}
			n, err := a.pipeline.Recover(cmd.Context(), olderThan)
			if err != nil {
				return a.out.Fail("recover", err)
			}
			return a.out.Success(map[string]any{"recovered": n, "olderThan": olderThan.String()},
				fmt.Sprintf("Recovered %d stale claim(s) older than %s", n, olderThan))
		},
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "claim age threshold (default from config)")

	return cmd
}
