package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/tally/internal/auth"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

// credentialPrompter is swapped out in tests.
var credentialPrompter = func(cmd *cobra.Command) *cli.Prompter {
	return cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and sync your ledger",
		Long: `Sign in with your email and password.

Signing in restores records backed up from your other devices and then
backs up this device's records. Use --no-wait to return before the sync
finishes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignIn(cmd, func(ctx context.Context, m *auth.Manager, email, password string) (*model.Session, error) {
				return m.Login(ctx, email, password)
			})
		},
	}
	addSignInFlags(cmd)
	return cmd
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignIn(cmd, func(ctx context.Context, m *auth.Manager, email, password string) (*model.Session, error) {
				return m.Signup(ctx, email, password)
			})
		},
	}
	addSignInFlags(cmd)
	return cmd
}

func addSignInFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("email", "e", "", "account email")
	cmd.Flags().Bool("no-wait", false, "do not wait for the initial sync")
}

type signInFunc func(ctx context.Context, m *auth.Manager, email, password string) (*model.Session, error)

func runSignIn(cmd *cobra.Command, signIn signInFunc) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	noWait, _ := cmd.Flags().GetBool("no-wait")

	a, err := openApp(ctx, appOptions{remote: true, autoSync: true, output: out})
	if err != nil {
		return err
	}
	defer a.Close()

	prompter := credentialPrompter(cmd)
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		if email, err = prompter.Ask(ctx, "Email", ""); err != nil {
			return err
		}
	}
	password, err := prompter.Secret(ctx, "Password")
	if err != nil {
		return err
	}

	session, err := signIn(ctx, a.manager, email, password)
	if err != nil {
		return err
	}
	printSession(out, session)

	task := a.manager.CurrentSync()
	if task == nil {
		return nil
	}
	if noWait {
		task.Cancel()
		<-task.Done()
		fmt.Fprintln(out, cli.FormatInfo("Skipped initial sync. Run: tally sync"))
		return nil
	}

	if err := task.Wait(); err != nil {
		// The session stands even when the sync fails.
		fmt.Fprintln(out, cli.FormatWarning("Initial sync failed: "+err.Error()))
		return nil
	}
	fmt.Fprintln(out, cli.FormatSuccess("Ledger synced"))
	return nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of this device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			a.manager.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Signed out. Local records stay on this device."))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), session)
			return nil
		},
	}
}

func printSession(w io.Writer, session *model.Session) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Signed in as %s", cli.BoldStyle.Render(session.Username))))
	fmt.Fprintf(w, "  %s %s\n", cli.SubtleStyle.Render("email:"), session.Email)
	fmt.Fprintf(w, "  %s %s\n", cli.SubtleStyle.Render("role: "), session.Role)
}
