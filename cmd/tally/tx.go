package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/spf13/cobra"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "Manage transactions in the local ledger",
	}

	cmd.AddCommand(txAddCmd())
	cmd.AddCommand(txListCmd())
	cmd.AddCommand(txDeleteCmd())

	return cmd
}

func txAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Long: `Record a transaction in the local ledger. It is backed up on the next sync.

Examples:
  tally tx add --merchant "Corner Cafe" --amount -4.50 --category Food
  tally tx add --date 2024-03-01 --merchant Payroll --amount 2500`,
		RunE: runTxAdd,
	}

	cmd.Flags().String("date", "", "transaction date, YYYY-MM-DD (default: today)")
	cmd.Flags().Float64("amount", 0, "signed amount, negative for spending")
	cmd.Flags().String("merchant", "", "merchant or payee")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().Bool("force", false, "record even when an identical transaction exists")
	addUserFlag(cmd)
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runTxAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	username, err := a.currentUsername(cmd)
	if err != nil {
		return err
	}

	date, _ := cmd.Flags().GetString("date")
	if date == "" {
		date = time.Now().Format(model.DateLayout)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}

	amount, _ := cmd.Flags().GetFloat64("amount")
	merchant, _ := cmd.Flags().GetString("merchant")
	category, _ := cmd.Flags().GetString("category")
	force, _ := cmd.Flags().GetBool("force")

	txn := &model.Transaction{
		Date:     date,
		Amount:   amount,
		Merchant: merchant,
		Category: category,
		Username: username,
	}

	if !force {
		existing, err := a.local.GetAllTransactions(ctx, username)
		if err != nil {
			return err
		}
		if reconcile.IsDuplicate(txn, existing) {
			fmt.Fprintln(out, cli.FormatWarning("An identical transaction is already recorded. Use --force to add it anyway."))
			return nil
		}
	}

	id, err := a.local.AddTransaction(ctx, txn)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Recorded transaction %d", id)))
	return nil
}

func txListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			all, _ := cmd.Flags().GetBool("all")
			username := ""
			if !all {
				if username, err = a.currentUsername(cmd); err != nil {
					return err
				}
			}

			records, err := a.local.GetAllTransactions(ctx, username)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No transactions recorded"))
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, txn := range records {
				rows = append(rows, []string{
					strconv.FormatInt(txn.ID, 10),
					txn.Date,
					cli.FormatAmount(txn.Amount),
					txn.Merchant,
					txn.Category,
					txn.Username,
					cli.FormatSyncState(txn.IsSynced(), txn.PendingFirestoreID != ""),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.SubtitleStyle.Render(fmt.Sprintf("%d transactions", len(records))))
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
				[]string{"ID", "Date", "Amount", "Merchant", "Category", "User", "Synced"}, rows))
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "list every user's transactions")
	addUserFlag(cmd)
	return cmd
}

func txDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction from the local ledger",
		Long: `Delete a transaction from the local ledger.

The Firebase copy is not removed, so a later restore on any device brings
the record back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}

			a, err := openApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.local.DeleteTransaction(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted transaction %d", id)))
			return nil
		},
	}
}
