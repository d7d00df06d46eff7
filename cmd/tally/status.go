package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user and how much of the ledger is backed up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			username, err := a.currentUsername(cmd)
			if errors.Is(err, common.ErrNotSignedIn) {
				fmt.Fprintln(out, cli.FormatWarning("Not signed in. Run: tally login"))
				return nil
			}
			if err != nil {
				return err
			}

			stats, err := a.local.GetTransactionStats(ctx, username)
			if err != nil {
				return err
			}

			lines := []string{
				fmt.Sprintf("%s %s", cli.UserIcon, cli.BoldStyle.Render(username)),
				fmt.Sprintf("%s %s", cli.SubtleStyle.Render("database:"), a.local.Path()),
				fmt.Sprintf("%s %d transactions", cli.LedgerIcon, stats.Total),
				fmt.Sprintf("%s %d backed up", cli.CloudIcon, stats.Synced),
			}
			if stats.Unsynced > 0 {
				lines = append(lines, fmt.Sprintf("%s %s", cli.PendingIcon,
					cli.WarningStyle.Render(fmt.Sprintf("%d waiting for sync (%d interrupted)", stats.Unsynced, stats.Pending))))
			}
			if cred, err := a.local.LoadCredential(ctx); err == nil && cred.Expired(time.Now()) {
				lines = append(lines, cli.SubtleStyle.Render("session token expired, it is refreshed on the next sync"))
			}
			fmt.Fprintln(out, cli.RenderBox("Ledger status", strings.Join(lines, "\n")))
			return nil
		},
	}
	addUserFlag(cmd)
	return cmd
}
