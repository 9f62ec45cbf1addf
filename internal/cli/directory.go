package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/domain"
)

// NewDirectoryCommand creates the directory command group. Rules read lobby
// names, display names and player-to-user mappings from the directory.
func NewDirectoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage lobby names and members used in narration",
	}
	cmd.AddCommand(newLobbyNameCommand(rootOpts))
	cmd.AddCommand(newMemberSetCommand(rootOpts))
	cmd.AddCommand(newMemberListCommand(rootOpts))
	return cmd
}

func newLobbyNameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lobby <lobby-id> <name>",
		Short: "Set a lobby's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.UpsertLobby(cmd.Context(), args[0], args[1]); err != nil {
				return a.out.Fail("set lobby", err)
			}
			return a.out.Success(map[string]any{"lobbyId": args[0], "name": args[1]},
				fmt.Sprintf("Lobby %s is %q", args[0], args[1]))
		},
	}
}

func newMemberSetCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "member <lobby-id> <player-id> <display-name>",
		Short: "Add or update a lobby member",
		Example: `  narrator directory member L1 p1 Ana --user-id u-ana`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			m := domain.Member{LobbyID: args[0], PlayerID: args[1], DisplayName: args[2], UserID: userID}
			if err := a.store.UpsertMember(cmd.Context(), m); err != nil {
				return a.out.Fail("set member", err)
			}
			return a.out.Success(m, fmt.Sprintf("Member %s/%s is %q", m.LobbyID, m.PlayerID, m.DisplayName))
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "account that receives the player's pushes")
	return cmd
}

func newMemberListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <lobby-id>",
		Short: "Show a lobby and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			lobby, err := a.store.LoadLobby(cmd.Context(), args[0])
			if err != nil {
				return a.out.Fail("load lobby", err)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Lobby %s %q, %d member(s)\n", lobby.ID, lobby.Name, len(lobby.Members))
			for _, m := range lobby.Members {
				fmt.Fprintf(&b, "  %-12s %-20s %s\n", m.PlayerID, m.DisplayName, m.UserID)
			}
			return a.out.Success(lobby, strings.TrimRight(b.String(), "\n"))
		},
	}
}
