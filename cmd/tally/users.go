package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users known to this device",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users that have signed in on this device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.local.GetAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No users have signed in on this device"))
				return nil
			}

			rows := make([][]string, 0, len(users))
			for _, user := range users {
				rows = append(rows, []string{user.Username, user.Email, user.Role, user.UID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"Username", "Email", "Role", "UID"}, rows))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <username>",
		Short: "Forget a user on this device",
		Long: `Forget a user on this device. Their transactions stay in the local ledger
and in Firebase.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.local.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed user %s", args[0])))
			return nil
		},
	})

	return cmd
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Show or change user roles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [uid]",
		Short: "Show a user's role (default: signed-in user)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.requireSession(ctx)
			if err != nil {
				return err
			}

			uid := session.UID
			if len(args) == 1 {
				uid = args[0]
			}
			role, err := a.roles.GetUserRole(ctx, uid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cli.SubtleStyle.Render(uid+":"), role)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <username> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.roles.UpdateUserRole(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s is now %s", args[0], args[1])))
			return nil
		},
	})

	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change per-user settings stored in Firebase",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [username]",
		Short: "Show a user's settings (default: signed-in user)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			username := session.Username
			if len(args) == 1 {
				username = args[0]
			}

			settings, err := a.roles.GetSettings(ctx, username)
			if err != nil {
				return err
			}
			if len(settings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("No settings saved for %s", username)))
				return nil
			}

			keys := make([]string, 0, len(settings))
			for key := range settings {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", cli.SubtleStyle.Render(key+":"), settings[key])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Update the signed-in user's settings",
		Long: `Merge the given key=value pairs into the signed-in user's settings.
Keys not listed keep their stored values.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := parseSettings(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{remote: true})
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			if err := a.roles.SaveSettings(ctx, session.Username, settings); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved %d settings", len(settings))))
			return nil
		},
	})

	return cmd
}

func parseSettings(args []string) (model.Settings, error) {
	settings := make(model.Settings, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", arg)
		}
		settings[strings.TrimSpace(key)] = value
	}
	return settings, nil
}
