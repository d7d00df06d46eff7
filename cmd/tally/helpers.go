package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/tally/internal/auth"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/Veraticus/tally/internal/remote"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app bundles everything a command may need. remote, roles, manager and
// reconciler are nil for commands that only touch the local ledger.
type app struct {
	cfg        *config.Config
	local      *storage.SQLiteStorage
	remote     service.RemoteStore
	provider   auth.Provider
	tokens     *auth.CredentialTokenSource
	roles      *auth.Roles
	manager    *auth.Manager
	reconciler *reconcile.Reconciler
	progress   reconcile.Progress
}

type appOptions struct {
	output io.Writer
	remote bool
	// autoSync starts a background sync on every session change.
	autoSync bool
}

// openApp is swapped out in tests.
var openApp = openRuntime

func openRuntime(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	local, err := initStorage(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, local: local}
	if !opts.remote {
		return a, nil
	}

	if err := cfg.RequireRemote(); err != nil {
		_ = local.Close()
		return nil, common.NewUserError("Firebase is not configured", err)
	}

	a.provider, err = auth.NewIdentityToolkitProvider(ctx, cfg.Firebase.APIKey)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	a.tokens = auth.NewCredentialTokenSource(ctx, cfg.Firebase.APIKey)
	a.remote, err = remote.NewFirestoreStore(ctx, remote.FirestoreConfig{
		ProjectID:       cfg.Firebase.ProjectID,
		DatabaseID:      cfg.Firebase.DatabaseID,
		CredentialsFile: cfg.Firebase.CredentialsFile,
		TokenSource:     a.tokens,
	})
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	a.wire(opts)
	return a, nil
}

// wire builds the remote-facing components from local, remote and provider.
func (a *app) wire(opts appOptions) {
	if opts.output != nil {
		a.progress = cli.NewSyncProgress(opts.output)
	}

	a.reconciler = reconcile.New(a.local, a.remote,
		reconcile.WithBatchSize(a.cfg.Sync.BatchSize),
		reconcile.WithProgress(a.progress))
	a.roles = auth.NewRoles(a.remote)

	managerOpts := []auth.ManagerOption{}
	if a.tokens != nil {
		managerOpts = append(managerOpts, auth.WithTokenSource(a.tokens))
	}
	if opts.autoSync {
		managerOpts = append(managerOpts, auth.WithSync(a.backgroundSync))
	}
	a.manager = auth.NewManager(a.provider, a.local, a.roles, managerOpts...)
}

func (a *app) backgroundSync(ctx context.Context, username string) error {
	if a.cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
		defer cancel()
	}

	result, err := a.reconciler.Sync(ctx, username)
	if err != nil {
		return err
	}
	slog.Info("Sync complete",
		"username", username,
		"restored", result.Restore.Inserted,
		"backed_up", result.Backup.Created+result.Backup.Updated)
	return nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			slog.Warn("Failed to close remote store", "error", err)
		}
	}
	if err := a.local.Close(); err != nil {
		slog.Warn("Failed to close local store", "error", err)
	}
}

// requireSession restores the saved session or fails with a sign-in hint.
func (a *app) requireSession(ctx context.Context) (*model.Session, error) {
	session, err := a.manager.RestoreSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, common.NewUserError("Not signed in. Run: tally login", common.ErrNotSignedIn)
	}
	return session, nil
}

// currentUsername resolves the user for local commands: the --user flag when
// given, otherwise the signed-in user. It never touches the network.
func (a *app) currentUsername(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Lookup("user") != nil {
		if username, _ := cmd.Flags().GetString("user"); username != "" {
			return username, nil
		}
	}

	cred, err := a.local.LoadCredential(cmd.Context())
	if errors.Is(err, common.ErrNotFound) {
		return "", common.NewUserError("Not signed in. Run: tally login, or pass --user", common.ErrNotSignedIn)
	}
	if err != nil {
		return "", err
	}

	users, err := a.local.GetAllUsers(cmd.Context())
	if err != nil {
		return "", err
	}
	for _, user := range users {
		if user.UID == cred.UID {
			return user.Username, nil
		}
	}
	return model.UsernameFromEmail(cred.Email), nil
}

// initStorage opens the local ledger and brings its schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}
