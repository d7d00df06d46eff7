package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/schollz/progressbar/v3"
)

// SyncProgress draws a progress bar for backup and restore runs.
type SyncProgress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	mu     sync.Mutex
}

var _ reconcile.Progress = (*SyncProgress)(nil)

// NewSyncProgress creates a progress reporter that writes to writer.
func NewSyncProgress(writer io.Writer) *SyncProgress {
	return &SyncProgress{writer: writer}
}

// Begin starts a bar for total records of op.
func (p *SyncProgress) Begin(op reconcile.Op, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(describe(op)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Step advances the bar by one record.
func (p *SyncProgress) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	if err := p.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// End finishes the current bar.
func (p *SyncProgress) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	p.bar = nil
}

func describe(op reconcile.Op) string {
	switch op {
	case reconcile.OpBackup:
		return "[cyan][bold]Backing up transactions...[reset]"
	case reconcile.OpRestore:
		return "[cyan][bold]Restoring transactions...[reset]"
	default:
		return "[cyan][bold]Syncing transactions...[reset]"
	}
}
