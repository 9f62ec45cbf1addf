package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/domain"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Status  string
	LobbyID string
	Limit   int
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [event-id]",
		Short: "Show queued events and their audit trail",
		Long: `Show one event with its rule-run audit rows, or list events.

Without an event ID, lists events newest first, filtered by --status and --lobby.

Example:
  narrator inspect 0192f3c4-...
  narrator inspect --status dead --limit 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (queued|processing|done|failed|dead)")
	cmd.Flags().StringVar(&opts.LobbyID, "lobby", "", "filter by lobby")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum events to list")

	return cmd
}

func runInspect(opts *InspectOptions, args []string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if len(args) == 1 {
		in, err := a.pipeline.Inspect(ctx, args[0])
		if err != nil {
			return a.out.Fail("inspect", err)
		}
		var b strings.Builder
		writeEvent(&b, in.Event)
		fmt.Fprintf(&b, "Rule runs: %d\n", len(in.RuleRuns))
		for _, run := range in.RuleRuns {
			fmt.Fprintf(&b, "  %s %-24s %-8s %-18s", run.CreatedAt.Format(time.RFC3339), run.RuleID, run.Channel, run.Decision)
			if len(run.Meta) > 0 {
				fmt.Fprintf(&b, " %v", run.Meta)
			}
			b.WriteString("\n")
		}
		return a.out.Success(in, strings.TrimRight(b.String(), "\n"))
	}

	events, err := a.pipeline.ListEvents(ctx, domain.ListFilter{
		LobbyID: opts.LobbyID,
		Status:  domain.Status(opts.Status),
		Limit:   opts.Limit,
	})
	if err != nil {
		return a.out.Fail("list events", err)
	}
	if len(events) == 0 {
		return a.out.Success(events, "No events")
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s  %-10s %-22s lobby=%s key=%s attempts=%d\n",
			ev.ID, ev.Status, ev.Type, ev.LobbyID, ev.Key, ev.Attempts)
	}
	return a.out.Success(events, strings.TrimRight(b.String(), "\n"))
}

func writeEvent(b *strings.Builder, ev domain.Event) {
	fmt.Fprintf(b, "Event:    %s\n", ev.ID)
	fmt.Fprintf(b, "Lobby:    %s\n", ev.LobbyID)
	fmt.Fprintf(b, "Type:     %s\n", ev.Type)
	fmt.Fprintf(b, "Key:      %s\n", ev.Key)
	fmt.Fprintf(b, "Status:   %s\n", ev.Status)
	fmt.Fprintf(b, "Attempts: %d\n", ev.Attempts)
	if ev.LastError != "" {
		fmt.Fprintf(b, "Error:    %s\n", ev.LastError)
	}
	fmt.Fprintf(b, "Payload:  %s\n", ev.Payload)
}
