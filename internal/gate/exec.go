package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/taicli/tai/internal/render"
)

// execute runs the confirmed command through the shell and records the
// captured output and exit code on the result. Output streams to the
// gate's writer live while also being captured for the model.
func (g *Gate) execute(ctx context.Context, result *Result) {
	cmd := exec.CommandContext(ctx, "bash", "-c", result.Command)
	cmd.Env = append(
		os.Environ(),
		"PAGER=cat",
		"GIT_PAGER=cat",
		"GIT_TERMINAL_PROMPT=0",
	)
	cmd.Stdin = os.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(g.out, &stdout)
	cmd.Stderr = io.MultiWriter(g.out, &stderr)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.State = StateCompleted
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExecErr = &ExecError{Command: result.Command, Err: err}
			fmt.Fprintf(g.out, "%s %v\n", render.ErrorStyle.Render(render.SymbolError), result.ExecErr)
			g.logger.Error("command spawn failed", zap.String("command", result.Command), zap.Error(err))
			return
		}
	} else {
		result.State = StateCompleted
	}

	g.printOutcome(result, elapsed)
	g.logger.Info(
		"command finished",
		zap.String("command", result.Command),
		zap.Int("exitCode", result.ExitCode),
		zap.Duration("duration", elapsed),
	)
}

func (g *Gate) printOutcome(result *Result, elapsed time.Duration) {
	duration := render.DimStyle.Render(fmt.Sprintf("(%s)", elapsed.Round(time.Millisecond)))
	if result.ExitCode == 0 {
		fmt.Fprintf(g.out, "%s exit 0 %s\n", render.SuccessStyle.Render(render.SymbolSuccess), duration)
	} else {
		fmt.Fprintf(g.out, "%s exit %d %s\n", render.ErrorStyle.Render(render.SymbolError), result.ExitCode, duration)
	}
}
