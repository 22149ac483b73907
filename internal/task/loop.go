// Package task drives the request→propose→confirm→execute cycle. A task
// starts from one user utterance and iterates model steps until the model
// answers with prose only, the user declines a command, or the step cap is
// reached.
package task

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/taicli/tai/internal/config"
	"github.com/taicli/tai/internal/contexts"
	"github.com/taicli/tai/internal/extract"
	"github.com/taicli/tai/internal/gate"
	"github.com/taicli/tai/internal/history"
	"github.com/taicli/tai/internal/llm"
	"github.com/taicli/tai/internal/render"
)

// Prompt history bounds: at most this many prior turns, none older than the
// relevance window. Stale interactions mislead more than they help.
const (
	historyPromptLimit  = 10
	historyPromptWindow = time.Hour
)

// maxCapturedOutput caps how much captured command output is folded back
// into the conversation. The full output still streams to the terminal.
const maxCapturedOutput = 48 * 1024

// LimitError reports a task that was still proposing commands when the
// configured step cap was reached.
type LimitError struct {
	Steps int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("task stopped after reaching the %d-step limit", e.Steps)
}

// Loop runs tasks against a fixed configuration, context block, and
// confirmation gate. One Loop serves one invocation; interactive mode
// reuses it across utterances.
type Loop struct {
	settings *config.Settings
	gateway  llm.Gateway
	gate     *gate.Gate
	store    *history.Store
	block    contexts.Block
	out      io.Writer
	markdown *render.Markdown
	spinner  *render.Spinner
	logger   *zap.Logger
}

// New assembles a task loop. The history store may be nil, in which case
// turns are neither recalled nor recorded.
func New(
	settings *config.Settings,
	gateway llm.Gateway,
	confirmGate *gate.Gate,
	store *history.Store,
	block contexts.Block,
	out io.Writer,
	logger *zap.Logger,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		settings: settings,
		gateway:  gateway,
		gate:     confirmGate,
		store:    store,
		block:    block,
		out:      out,
		markdown: render.NewMarkdown(out),
		spinner:  render.NewSpinner(out),
		logger:   logger,
	}
}

// Run executes one task from the given utterance. It returns nil when the
// task ends normally (prose answer, cancel, or copy), a GatewayError when
// the provider call fails, and a LimitError when the step cap is hit with
// the model still proposing commands.
func (l *Loop) Run(ctx context.Context, utterance string) error {
	system := l.systemPrompt()

	messages := []llm.Message{{Role: llm.RoleUser, Content: utterance}}
	stepUtterance := utterance

	for step := 1; step <= l.settings.MaxSteps; step++ {
		if step > 1 {
			fmt.Fprintln(l.out, render.HeaderStyle.Render(fmt.Sprintf("── step %d ──", step)))
		}

		response, err := l.complete(ctx, system, messages)
		if err != nil {
			return err
		}

		l.markdown.Print(response.Text)

		command, ok := extract.Command(response.Text)
		if !ok {
			l.record(&history.Turn{Utterance: stepUtterance, Response: response.Text})
			return nil
		}

		result := l.gate.Resolve(ctx, command)
		l.record(turnFromResult(stepUtterance, response.Text, result))

		if !result.Executed() && result.ExecErr == nil {
			return nil
		}

		feedback := foldResult(result)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: response.Text},
			llm.Message{Role: llm.RoleUser, Content: feedback},
		)
		stepUtterance = feedback
	}

	return &LimitError{Steps: l.settings.MaxSteps}
}

func (l *Loop) complete(ctx context.Context, system string, messages []llm.Message) (*llm.Response, error) {
	l.spinner.SetMessage("thinking")
	stop := l.spinner.Start(ctx)
	defer stop()

	started := time.Now()
	response, err := l.gateway.Complete(ctx, llm.Request{System: system, Messages: messages})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("model step completed", zap.Duration("duration", time.Since(started)))
	return response, nil
}

// record appends a turn to the store. Persistence failures are logged and
// otherwise ignored; losing a history entry must not abort the task.
func (l *Loop) record(turn *history.Turn) {
	if l.store == nil {
		return
	}
	if err := l.store.Append(turn); err != nil {
		l.logger.Warn("failed to record history turn", zap.Error(err))
	}
}

func turnFromResult(utterance, response string, result *gate.Result) *history.Turn {
	turn := &history.Turn{
		Utterance: utterance,
		Response:  response,
		Command:   result.Command,
	}

	switch result.State {
	case gate.StateCompleted:
		turn.Decision = history.DecisionExecuted
		turn.ExitCode = sql.NullInt32{Int32: int32(result.ExitCode), Valid: true}
		turn.Output = truncateOutput(combineOutput(result))
	case gate.StateCopied:
		turn.Decision = history.DecisionCopied
	default:
		turn.Decision = history.DecisionCancelled
		if result.ExecErr != nil {
			turn.Decision = history.DecisionExecuted
			turn.Output = result.ExecErr.Error()
		}
	}

	return turn
}

// foldResult renders an execution outcome as the next user message so the
// model can decide the following step.
func foldResult(result *gate.Result) string {
	if result.ExecErr != nil {
		return fmt.Sprintf("The command could not be started: %v\nSuggest a corrected command or explain the problem.", result.ExecErr.Err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The command `%s` exited with code %d.\n", result.Command, result.ExitCode)

	if out := truncateOutput(result.Stdout); out != "" {
		fmt.Fprintf(&sb, "\nstdout:\n```\n%s\n```\n", strings.TrimRight(out, "\n"))
	}
	if errOut := truncateOutput(result.Stderr); errOut != "" {
		fmt.Fprintf(&sb, "\nstderr:\n```\n%s\n```\n", strings.TrimRight(errOut, "\n"))
	}
	if result.Stdout == "" && result.Stderr == "" {
		sb.WriteString("\nThe command produced no output.\n")
	}

	sb.WriteString("\nContinue the task, or answer in prose only if it is complete.")
	return sb.String()
}

func combineOutput(result *gate.Result) string {
	if result.Stderr == "" {
		return result.Stdout
	}
	if result.Stdout == "" {
		return result.Stderr
	}
	return result.Stdout + "\n" + result.Stderr
}

func truncateOutput(output string) string {
	if len(output) <= maxCapturedOutput {
		return output
	}
	omitted := len(output) - maxCapturedOutput
	return output[:maxCapturedOutput] + fmt.Sprintf("\n... [%s of output omitted]", humanize.Bytes(uint64(omitted)))
}

// systemPrompt builds the fixed system message: role and command-format
// instructions, the assembled context block, and recent relevant history.
func (l *Loop) systemPrompt() string {
	var sb strings.Builder

	sb.WriteString(`You are tai, a command line assistant. The user describes what they want done and you translate it into shell commands.

Rules:
- Answer in markdown.
- When a command is needed, propose exactly one command per reply, in a single fenced code block tagged sh, containing exactly one command line. Put explanation outside the block.
- Never propose more than one command in a reply. For multi-step work, propose the first step and wait for the result.
- When the task is complete, or no command is needed, reply with prose only and no code block.
`)

	if !l.block.Empty() {
		sb.WriteString("\n## Context provided by the user\n\n")
		sb.WriteString(l.block.Render())
	}

	if turns := l.recentTurns(); len(turns) > 0 {
		sb.WriteString("\n## Recent interactions\n\n")
		for _, turn := range turns {
			fmt.Fprintf(&sb, "- %s: user asked %q", humanize.Time(turn.CreatedAt), turn.Utterance)
			if turn.Command != "" {
				fmt.Fprintf(&sb, "; proposed `%s` (%s", turn.Command, turn.Decision)
				if turn.ExitCode.Valid {
					fmt.Fprintf(&sb, ", exit %d", turn.ExitCode.Int32)
				}
				sb.WriteString(")")
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (l *Loop) recentTurns() []history.Turn {
	if l.store == nil {
		return nil
	}
	turns, err := l.store.RecentWithin(historyPromptLimit, historyPromptWindow)
	if err != nil {
		l.logger.Warn("failed to load recent history", zap.Error(err))
		return nil
	}
	return turns
}
