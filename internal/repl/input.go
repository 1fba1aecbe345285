package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"golang.org/x/term"

	"assistant/internal/widget"
)

// ErrInterrupt is returned by ReadLine when the user presses Ctrl+C.
var ErrInterrupt = readline.ErrInterrupt

// LineInput reads one line of user input.
type LineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type basicLineInput struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewBasicLineInput reads lines from in without line editing.
func NewBasicLineInput(in io.Reader, out io.Writer) LineInput {
	return &basicLineInput{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

func (b *basicLineInput) ReadLine(prompt string) (string, error) {
	if b.out != nil {
		fmt.Fprint(b.out, prompt)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *basicLineInput) Close() error { return nil }

type readlineInput struct {
	instance *readline.Instance
}

func newReadlineInput(historyPath string) (*readlineInput, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
			return nil, errors.Wrap(err, "create history dir")
		}
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(widget.CommandNames))
	for _, name := range widget.CommandNames {
		items = append(items, readline.PcItem(name))
	}
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
		AutoComplete:      readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return nil, err
	}
	return &readlineInput{instance: instance}, nil
}

func (r *readlineInput) ReadLine(prompt string) (string, error) {
	r.instance.SetPrompt(prompt)
	return r.instance.Readline()
}

func (r *readlineInput) Close() error {
	if r == nil || r.instance == nil {
		return nil
	}
	return r.instance.Close()
}

// NewLineInput 终端下使用 readline（历史、补全），否则逐行读取 stdin
// NewLineInput uses readline with history and command completion on a
// terminal, and plain line reads otherwise.
func NewLineInput(historyPath string) LineInput {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if in, err := newReadlineInput(historyPath); err == nil {
			return in
		}
	}
	return NewBasicLineInput(os.Stdin, os.Stdout)
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
