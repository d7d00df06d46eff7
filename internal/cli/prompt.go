package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// Prompter asks the user for single line answers.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
	input  io.Reader
}

// NewPrompter creates a prompter reading from reader and writing prompts to writer.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: bufio.NewReader(reader),
		writer: writer,
		input:  reader,
	}
}

// Ask prints label and returns the trimmed answer. A non-empty def is
// returned when the answer is blank.
func (p *Prompter) Ask(ctx context.Context, label, def string) (string, error) {
	prompt := label
	if def != "" {
		prompt += " " + SubtleStyle.Render("["+def+"]")
	}
	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", err
	}

	line, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Secret asks for a value without echoing it when input is a terminal.
func (p *Prompter) Secret(ctx context.Context, label string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(label)); err != nil {
		return "", err
	}

	f, ok := p.input.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.readLine(ctx)
	}

	type result struct {
		err   error
		value []byte
	}
	resultCh := make(chan result, 1)
	go func() {
		value, err := term.ReadPassword(int(f.Fd()))
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		_, _ = fmt.Fprintln(p.writer)
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(string(res.value)), nil
	}
}

// readLine reads one line, returning early when ctx is canceled. The read
// itself keeps going in the background until input arrives.
func (p *Prompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		value, err := p.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.value != "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}
