package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Contains(t, FormatAmount(-25.5), "-25.50")
	assert.Contains(t, FormatAmount(1000), "1000.00")
}

func TestFormatSyncState(t *testing.T) {
	assert.Contains(t, FormatSyncState(true, false), CloudIcon)
	assert.Contains(t, FormatSyncState(false, true), PendingIcon)
	assert.Contains(t, FormatSyncState(false, false), "-")
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "Merchant"},
		[][]string{{"1", "Cafe"}, {"2", "Grocer"}},
	)

	for _, want := range []string{"ID", "Merchant", "Cafe", "Grocer"} {
		assert.Contains(t, out, want)
	}
	assert.GreaterOrEqual(t, strings.Count(out, "\n"), 3)
}

func TestFormatMessages(t *testing.T) {
	assert.Contains(t, FormatSuccess("done"), SuccessIcon+" done")
	assert.Contains(t, FormatError("failed"), ErrorIcon+" failed")
	assert.Contains(t, FormatTitle("Ledger"), "Ledger")
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Ledger status", "3 transactions\n1 backed up")
	for _, want := range []string{"Ledger status", "3 transactions", "1 backed up"} {
		assert.Contains(t, out, want)
	}
}
