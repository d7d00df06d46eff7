package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/auth"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/remote"
	"github.com/Veraticus/tally/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	dbPath   string
	remote   *remote.MemoryStore
	provider *auth.MockProvider
}

// newTestEnv points every command at a temporary ledger and an in-memory
// Firebase with one account, alice@example.com / hunter22.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		dbPath:   filepath.Join(t.TempDir(), "tally.db"),
		remote:   remote.NewMemoryStore(),
		provider: auth.NewMockProvider(),
	}
	env.provider.AddAccount("uid-alice", "alice@example.com", "hunter22")

	original := openApp
	openApp = func(ctx context.Context, opts appOptions) (*app, error) {
		local, err := initStorage(ctx, env.dbPath)
		if err != nil {
			return nil, err
		}
		a := &app{
			cfg: &config.Config{
				DatabasePath: env.dbPath,
				Sync:         config.SyncConfig{BatchSize: 500, Timeout: time.Minute},
			},
			local: local,
		}
		if !opts.remote {
			return a, nil
		}
		a.remote = env.remote
		a.provider = env.provider
		a.wire(opts)
		return a, nil
	}
	t.Cleanup(func() { openApp = original })

	return env
}

func (env *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (env *testEnv) login(t *testing.T) {
	t.Helper()
	out, err := env.run(t, "hunter22\n", "login", "--email", "alice@example.com")
	require.NoError(t, err, out)
}

func TestLoginSyncsLedger(t *testing.T) {
	env := newTestEnv(t)
	env.remote.Put(service.TransactionsCollection, "remote-1", map[string]any{
		"date":     "2024-02-28",
		"amount":   int64(-12),
		"merchant": "Bakery",
		"category": "Food",
		"userId":   "alice",
	})

	out, err := env.run(t, "hunter22\n", "login", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "Ledger synced")

	out, err = env.run(t, "", "tx", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Bakery")
	assert.Contains(t, out, "2024-02-28")
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "wrong\n", "login", "--email", "alice@example.com")
	require.Error(t, err)

	out, err := env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestLoginPromptsForEmail(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "alice@example.com\nhunter22\n", "login", "--no-wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")
}

func TestAddBackupAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.run(t, "", "tx", "add", "--date", "2024-03-01", "--merchant", "Corner Cafe", "--amount", "-4.50", "--category", "Food")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded transaction")

	out, err = env.run(t, "", "tx", "add", "--date", "2024-03-01", "--merchant", "Corner Cafe", "--amount", "-4.50")
	require.NoError(t, err)
	assert.Contains(t, out, "already recorded")

	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 transactions")
	assert.Contains(t, out, "1 waiting for sync")

	out, err = env.run(t, "", "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "backed up: 1 new, 0 updated")
	assert.Contains(t, out, "Backup complete")

	docs := env.remote.Documents(service.TransactionsCollection)
	require.Len(t, docs, 1)
	assert.Equal(t, "Corner Cafe", docs[0].Data["merchant"])
	assert.Equal(t, "alice", docs[0].Data["username"])

	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 backed up")
	assert.NotContains(t, out, "waiting for sync")
}

func TestTxAddForceAndDelete(t *testing.T) {
	env := newTestEnv(t)

	args := []string{"tx", "add", "--user", "bob", "--date", "2024-03-01", "--merchant", "Gym", "--amount", "-30"}
	_, err := env.run(t, "", args...)
	require.NoError(t, err)
	_, err = env.run(t, "", append(args, "--force")...)
	require.NoError(t, err)

	out, err := env.run(t, "", "tx", "list", "--user", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Gym"))

	out, err = env.run(t, "", "tx", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted transaction 1")

	out, err = env.run(t, "", "tx", "list", "--user", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "Gym"))

	_, err = env.run(t, "", "tx", "add", "--user", "bob", "--date", "03/01/2024", "--merchant", "Gym", "--amount", "-30")
	assert.Error(t, err)
}

func TestSyncRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestSyncReportsRestoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	_, err := env.run(t, "", "tx", "add", "--date", "2024-03-01", "--merchant", "Corner Cafe", "--amount", "-4.50")
	require.NoError(t, err)

	env.remote.QueryErr = func(collection string) error {
		if collection == service.TransactionsCollection {
			return assert.AnError
		}
		return nil
	}

	out, err := env.run(t, "", "sync")
	require.Error(t, err)
	assert.Contains(t, out, "Sync stopped at")
	assert.Contains(t, out, "backed up: 1 new")
	assert.Len(t, env.remote.Documents(service.TransactionsCollection), 1)
}

func TestWhoamiAndLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")

	out, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = env.run(t, "", "whoami")
	assert.Error(t, err)
}

func TestRoleAndSettings(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.run(t, "", "role", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "uid-alice: user")

	_, err = env.run(t, "", "role", "set", "alice", "admin")
	require.NoError(t, err)

	out, err = env.run(t, "", "role", "get", "uid-alice")
	require.NoError(t, err)
	assert.Contains(t, out, "uid-alice: admin")

	out, err = env.run(t, "", "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "No settings saved")

	_, err = env.run(t, "", "settings", "set", "currency=EUR", "theme=dark")
	require.NoError(t, err)

	out, err = env.run(t, "", "settings", "get", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "currency: EUR")
	assert.Contains(t, out, "theme: dark")

	_, err = env.run(t, "", "settings", "set", "theme=light")
	require.NoError(t, err)

	out, err = env.run(t, "", "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "currency: EUR")
	assert.Contains(t, out, "theme: light")

	_, err = env.run(t, "", "settings", "set", "novalue")
	assert.Error(t, err)
}

func TestUsersListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.run(t, "", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")

	_, err = env.run(t, "", "users", "delete", "alice")
	require.NoError(t, err)

	out, err = env.run(t, "", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users")

	_, err = env.run(t, "", "users", "delete", "alice")
	assert.Error(t, err)
}

func TestImportOFX(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.qfx"), []byte(testOFX), 0o600))

	out, err := env.run(t, "", "import", "ofx", "--user", "alice", "--dry-run", filepath.Join(dir, "*.qfx"))
	require.NoError(t, err)
	assert.Contains(t, out, "would import 2 transactions")

	out, err = env.run(t, "", "import", "ofx", "--user", "alice", filepath.Join(dir, "*.qfx"))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 transactions, skipped 0")

	out, err = env.run(t, "", "import", "ofx", "--user", "alice", filepath.Join(dir, "jan.qfx"))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 transactions, skipped 2")

	_, err = env.run(t, "", "import", "ofx", "--user", "alice", filepath.Join(dir, "*.ofx"))
	assert.Error(t, err)
}

func TestParseSettings(t *testing.T) {
	settings, err := parseSettings([]string{"currency=EUR", " theme =dark", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "EUR", settings["currency"])
	assert.Equal(t, "dark", settings["theme"])
	assert.Equal(t, "", settings["empty"])

	_, err = parseSettings([]string{"=value"})
	assert.Error(t, err)
}

const testOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>JAN01
<NAME>STARBUCKS
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-100.00
<FITID>JAN02
<NAME>WHOLE FOODS
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`
