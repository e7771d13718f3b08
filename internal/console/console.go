// Package console is the controller's line-oriented command interface.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/usecase"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const (
	prompt      = "bridge> "
	blockPrompt = "... "
	blockEnd    = "end"
)

var errUnterminated = errors.New("unterminated escape or quote")

// Console reads commands from in and writes human-readable results to out.
// Script blocks (train, analyze) continue on the following lines up to a
// line holding only "end".
type Console struct {
	cluster   usecase.ClusterUseCase
	assistant usecase.AssistantUseCase
	out       io.Writer
	prompt    bool
	now       func() time.Time
	log       *zerolog.Logger

	lines <-chan string
}

type Option func(*Console)

// WithPrompt prints prompts; use it when stdin is a terminal.
func WithPrompt(on bool) Option { return func(c *Console) { c.prompt = on } }

func WithLogger(l *zerolog.Logger) Option { return func(c *Console) { c.log = l } }

func New(cluster usecase.ClusterUseCase, assistant usecase.AssistantUseCase, out io.Writer, opts ...Option) *Console {
	nop := zerolog.Nop()
	c := &Console{cluster: cluster, assistant: assistant, out: out, now: time.Now, log: &nop}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Run executes commands from in until exit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	c.lines = lines

	c.printf("GPU notebook bridge controller. Type 'help' for commands.\n")
	for {
		c.showPrompt(prompt)
		line, ok := c.next(ctx)
		if !ok {
			return ctx.Err()
		}
		quit, err := c.Execute(ctx, line)
		if err != nil {
			c.log.Debug().Err(err).Str("line", line).Msg("command failed")
			c.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) next(ctx context.Context) (string, bool) {
	if c.lines == nil {
		return "", false
	}
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return line, ok
	}
}

// readBlock collects lines up to the terminator. A block cut short by the
// end of input is returned as read so far.
func (c *Console) readBlock(ctx context.Context) string {
	var b strings.Builder
	for {
		c.showPrompt(blockPrompt)
		line, ok := c.next(ctx)
		if !ok || strings.TrimSpace(line) == blockEnd {
			return b.String()
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// Execute runs one command line. quit is true for exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	// free text after ask is taken verbatim, apostrophes included
	if head, tail, _ := strings.Cut(line, " "); strings.EqualFold(head, "ask") {
		return false, c.ask(ctx, strings.TrimSpace(tail))
	}

	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help", "?":
		c.help()
		return false, nil
	case "connect":
		return false, c.connect(ctx, rest)
	case "nodes":
		return false, c.nodes(ctx)
	case "status":
		return false, c.status(ctx)
	case "train":
		return false, c.train(ctx, rest)
	case "job_status":
		return false, c.jobStatus(ctx, rest)
	case "cancel":
		return false, c.cancel(ctx, rest)
	case "analyze":
		return false, c.analyze(ctx)
	case "optimize":
		return false, c.optimize(ctx)
	case "reset":
		if c.assistant != nil {
			c.assistant.Reset()
		}
		c.printf("assistant conversation cleared\n")
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown command %q (try 'help')", domain.ErrInvalidArgument, args[0])
	}
}

func (c *Console) help() {
	c.printf(`Commands:
  connect <url>                    register a worker node
  nodes                            list registered nodes
  status                           show resources of every node
  train [--nodes N] [--epochs E]   submit the script typed on the next lines, ending with 'end'
  job_status [job_id]              list jobs, or show each node's view of one job
  cancel <job_id>                  cancel a job on its nodes
  ask <message>                    ask the assistant
  analyze                          review the code typed on the next lines, ending with 'end'
  optimize                         suggest an optimised version of the last submitted script
  reset                            clear the assistant conversation
  help                             show this help
  exit                             leave the console
`)
}

func (c *Console) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format, a...)
}

func (c *Console) showPrompt(p string) {
	if c.prompt {
		c.printf("%s", p)
	}
}

func splitArgs(input string) ([]string, error) {
	var (
		args      []string
		builder   strings.Builder
		inQuotes  bool
		quoteChar rune
		escaped   bool
	)
	for _, r := range input {
		if escaped {
			builder.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if inQuotes {
			if r == quoteChar {
				inQuotes = false
				continue
			}
			builder.WriteRune(r)
			continue
		}
		if r == '"' || r == '\'' {
			inQuotes = true
			quoteChar = r
			continue
		}
		if unicode.IsSpace(r) {
			if builder.Len() > 0 {
				args = append(args, builder.String())
				builder.Reset()
			}
			continue
		}
		builder.WriteRune(r)
	}
	if escaped || inQuotes {
		return nil, errUnterminated
	}
	if builder.Len() > 0 {
		args = append(args, builder.String())
	}
	return args, nil
}
