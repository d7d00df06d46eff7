package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/ofx"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from bank exports",
	}
	cmd.AddCommand(importOFXCmd())
	return cmd
}

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import financial transactions from OFX or QFX (Quicken) files exported from your bank.

Transactions already in the ledger (same date, amount and merchant) are skipped.

Examples:
  # Import single file
  tally import ofx ~/Downloads/chase_jan_2024.qfx

  # Import all QFX files in a directory
  tally import ofx ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	addUserFlag(cmd)

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	username, err := a.currentUsername(cmd)
	if err != nil {
		return err
	}

	existing, err := a.local.GetAllTransactions(ctx, username)
	if err != nil {
		return err
	}

	parser := ofx.NewParser()
	var added, skipped int

	for _, path := range files {
		content, err := os.ReadFile(path) // #nosec G304
		if err != nil {
			slog.Error("Failed to read file", "file", path, "error", err)
			continue
		}

		transactions, err := parser.ParseFile(ctx, bytes.NewReader(content), username)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}
		accounts, _ := parser.GetAccounts(ctx, bytes.NewReader(content))

		fileAdded := 0
		for i := range transactions {
			txn := &transactions[i]
			if reconcile.IsDuplicate(txn, existing) {
				skipped++
				continue
			}
			if !dryRun {
				if _, err := a.local.AddTransaction(ctx, txn); err != nil {
					return fmt.Errorf("failed to save transaction from %s: %w", filepath.Base(path), err)
				}
			}
			existing = append(existing, *txn)
			fileAdded++
		}
		added += fileAdded

		fmt.Fprintf(out, "  %s %s: %d new of %d (accounts: %s)\n",
			cli.LedgerIcon, filepath.Base(path), fileAdded, len(transactions), strings.Join(accounts, ", "))
	}

	summary := fmt.Sprintf("Imported %d transactions, skipped %d already recorded", added, skipped)
	if dryRun {
		summary = fmt.Sprintf("Dry run: would import %d transactions, %d already recorded", added, skipped)
	}
	fmt.Fprintln(out, cli.FormatSuccess(summary))
	return nil
}

// expandFiles resolves glob patterns to existing files.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}
