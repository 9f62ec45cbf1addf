package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <lobby-id>",
		Short: "Show the comments written for a lobby",
		Long: `Show every comment written for a lobby, oldest first, including
history-only comments that the feed hides.

Example:
  narrator feed L1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			comments, err := a.store.ListComments(cmd.Context(), args[0])
			if err != nil {
				return a.out.Fail("list comments", err)
			}
			if len(comments) == 0 {
				return a.out.Success(comments, "No comments")
			}
			var b strings.Builder
			for _, c := range comments {
				fmt.Fprintf(&b, "%s [%s/%s] %s\n", c.CreatedAt.Format(time.RFC3339), c.Visibility, c.RuleID, c.Body)
			}
			return a.out.Success(comments, strings.TrimRight(b.String(), "\n"))
		},
	}
}
