package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/pipeline"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	Payload string
	Process bool
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue <lobby-id> <event-type> <key>",
		Short: "Queue a domain event for narration",
		Long: `Queue a domain event for narration.

Re-enqueueing the same lobby, type and key is a no-op reported as a duplicate.

Example:
  narrator enqueue L1 ACTIVITY_LOGGED A1 --payload '{"activityId":"A1","playerId":"p1"}'
  narrator enqueue L1 POT_CHANGED pot-7 --payload '{"previousPot":100,"newPot":150}' --process`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as JSON")
	cmd.Flags().BoolVar(&opts.Process, "process", false, "process the lobby's queue after enqueueing")

	return cmd
}

func runEnqueue(opts *EnqueueOptions, args []string, cmd *cobra.Command) error {
	if !json.Valid([]byte(opts.Payload)) {
		return NewExitError(ExitCommandError, "invalid --payload JSON")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	lobbyID := args[0]
	res, err := a.pipeline.Enqueue(ctx, lobbyID, domain.EventType(args[1]), args[2], json.RawMessage(opts.Payload))
	if err != nil {
		return a.out.Fail("enqueue", err)
	}

	text := fmt.Sprintf("Enqueued %s", res.EventID)
	if res.Duplicate {
		text = fmt.Sprintf("Duplicate of %s", res.EventID)
	}

	data := map[string]any{"result": res}
	if opts.Process {
		stats, err := a.pipeline.ProcessQueue(ctx, pipeline.Options{LobbyID: lobbyID})
		if err != nil {
			return a.out.Fail("process", err)
		}
		data["processed"] = stats
		text += "\n" + formatStats(stats)
	}
	return a.out.Success(data, text)
}
