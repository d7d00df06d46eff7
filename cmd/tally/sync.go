package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Restore missing records, then back up local records",
		Long: `Reconcile the local ledger with Firebase.

Remote records that are not present locally (same date, amount and merchant)
are inserted, then every local record is written to Firebase. A failed
restore does not stop the backup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, "Sync", func(ctx context.Context, r *reconcile.Reconciler, username string, out io.Writer) error {
				result, err := r.Sync(ctx, username)
				printRestoreResult(out, result.Restore)
				printBackupResult(out, result.Backup)
				return err
			})
		},
	}
	addUserFlag(cmd)
	return cmd
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write every local record to Firebase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, "Backup", func(ctx context.Context, r *reconcile.Reconciler, username string, out io.Writer) error {
				result, err := r.Backup(ctx, username)
				printBackupResult(out, result)
				return err
			})
		},
	}
	addUserFlag(cmd)
	return cmd
}

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Insert Firebase records missing from the local ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, "Restore", func(ctx context.Context, r *reconcile.Reconciler, username string, out io.Writer) error {
				result, err := r.Restore(ctx, username)
				printRestoreResult(out, result)
				return err
			})
		},
	}
	addUserFlag(cmd)
	return cmd
}

func addUserFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "username (default: signed-in user)")
}

type reconcileFunc func(ctx context.Context, r *reconcile.Reconciler, username string, out io.Writer) error

func runReconcile(cmd *cobra.Command, operation string, run reconcileFunc) error {
	out := cmd.OutOrStdout()

	handler := cli.NewInterruptHandler(out)
	ctx, stop := handler.HandleInterrupts(cmd.Context(), operation)
	defer stop()

	a, err := openApp(ctx, appOptions{remote: true, output: out})
	if err != nil {
		return err
	}
	defer a.Close()

	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		session, err := a.requireSession(ctx)
		if err != nil {
			return err
		}
		username = session.Username
	}

	if a.cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
		defer cancel()
	}

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s for %s", operation, username)))
	if err := run(ctx, a.reconciler, username, out); err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		if stage := reconcile.StageOf(err); stage != "" {
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s stopped at %s", operation, stage)))
		}
		return err
	}
	fmt.Fprintln(out, cli.FormatSuccess(operation+" complete"))
	return nil
}

func printBackupResult(w io.Writer, result reconcile.BackupResult) {
	fmt.Fprintf(w, "  %s backed up: %d new, %d updated\n", cli.CloudIcon, result.Created, result.Updated)
}

func printRestoreResult(w io.Writer, result reconcile.RestoreResult) {
	fmt.Fprintf(w, "  %s restored: %d new, %d already present", cli.SyncIcon, result.Inserted, result.Skipped)
	if result.Invalid > 0 {
		fmt.Fprintf(w, ", %s", cli.WarningStyle.Render(fmt.Sprintf("%d unreadable", result.Invalid)))
	}
	fmt.Fprintln(w)
}
