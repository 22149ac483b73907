// Package gate presents a proposed command to the user, collects the
// execute/cancel/copy decision, and on execution runs the command as a
// child process with its output captured.
//
// State machine: Proposed → {Executing, Cancelled, Copied};
// Executing → Completed. The default decision is Cancelled — the safe,
// non-destructive choice on empty input, EOF, or a confirmation timeout.
package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/taicli/tai/internal/render"
)

// State of a proposed command.
type State string

const (
	StateProposed  State = "proposed"
	StateExecuting State = "executing"
	StateCancelled State = "cancelled"
	StateCopied    State = "copied"
	StateCompleted State = "completed"
)

// Decision is the user's answer to the confirmation prompt.
type Decision int

const (
	DecisionCancel Decision = iota
	DecisionExecute
	DecisionCopy
)

// ExecError reports a child process that could not be spawned (e.g.
// command not found on exec). It is recorded as the step result, not
// escalated to a gate failure.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Result is the terminal outcome of one proposed command.
type Result struct {
	Command  string
	State    State
	Stdout   string
	Stderr   string
	ExitCode int
	ExecErr  *ExecError
}

// Executed reports whether the command actually ran (successfully spawned
// or not).
func (r *Result) Executed() bool {
	return r.State == StateCompleted
}

// Gate gates command execution behind explicit confirmation. It processes
// exactly one candidate at a time; concurrent proposals block until the
// previous one is resolved.
type Gate struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	timeout time.Duration
	copyFn  func(string) error
	logger  *zap.Logger
}

// New creates a Gate reading confirmations from in and writing prompts
// and live command output to out. A zero timeout waits for input forever;
// a configured timeout resolves to Cancelled. The logger is optional.
func New(in io.Reader, out io.Writer, timeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Reuse an existing buffered reader so interleaved reads elsewhere on
	// the same stream do not lose buffered input.
	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}
	return &Gate{
		in:      reader,
		out:     out,
		timeout: timeout,
		copyFn:  clipboard.WriteAll,
		logger:  logger,
	}
}

// SetCopyFunc overrides the clipboard write, for testing.
func (g *Gate) SetCopyFunc(copyFn func(string) error) {
	g.copyFn = copyFn
}

// Resolve presents a candidate and drives it to a terminal state.
func (g *Gate) Resolve(ctx context.Context, command string) *Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := &Result{Command: command, State: StateProposed}

	fmt.Fprintf(g.out, "%s %s\n", render.CommandStyle.Render(render.SymbolCommand), render.CommandStyle.Render(command))
	fmt.Fprint(g.out, "Execute this command? [y/N/c(opy)] ")

	switch g.readDecision() {
	case DecisionExecute:
		result.State = StateExecuting
		g.logger.Info("executing command", zap.String("command", command))
		g.execute(ctx, result)
	case DecisionCopy:
		result.State = StateCopied
		if err := g.copyFn(command); err != nil {
			// Copy failure is reported but the decision stands; nothing ran.
			fmt.Fprintf(g.out, "%s failed to copy to clipboard: %v\n", render.ErrorStyle.Render(render.SymbolError), err)
			g.logger.Warn("clipboard copy failed", zap.Error(err))
		} else {
			fmt.Fprintf(g.out, "%s copied to clipboard\n", render.DimStyle.Render(render.SymbolSkipped))
		}
	default:
		result.State = StateCancelled
		fmt.Fprintf(g.out, "%s command not executed\n", render.DimStyle.Render(render.SymbolSkipped))
		g.logger.Info("command cancelled", zap.String("command", command))
	}

	return result
}

// readDecision reads a single line and interprets its first character,
// case-insensitively. Empty input, EOF, read errors, and timeouts all
// resolve to cancel.
func (g *Gate) readDecision() Decision {
	type lineResult struct {
		line string
		err  error
	}

	lineCh := make(chan lineResult, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		lineCh <- lineResult{line: line, err: err}
	}()

	var timeoutCh <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-lineCh:
		if res.err != nil && res.line == "" {
			return DecisionCancel
		}
		return parseDecision(res.line)
	case <-timeoutCh:
		fmt.Fprintln(g.out)
		return DecisionCancel
	}
}

func parseDecision(line string) Decision {
	for _, r := range line {
		switch r {
		case ' ', '\t':
			continue
		case 'y', 'Y':
			return DecisionExecute
		case 'c', 'C':
			return DecisionCopy
		default:
			return DecisionCancel
		}
	}
	return DecisionCancel
}
