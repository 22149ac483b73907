package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taicli/tai/internal/config"
	"github.com/taicli/tai/internal/contexts"
	"github.com/taicli/tai/internal/gate"
	"github.com/taicli/tai/internal/history"
	"github.com/taicli/tai/internal/llm"
)

// scriptedGateway returns canned responses in order and records every
// request it receives.
type scriptedGateway struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (g *scriptedGateway) Complete(_ context.Context, request llm.Request) (*llm.Response, error) {
	g.requests = append(g.requests, request)
	if g.err != nil {
		return nil, g.err
	}
	call := len(g.requests)
	if call > len(g.responses) {
		return nil, &llm.GatewayError{Kind: llm.ErrNetwork, Err: errors.New("script exhausted")}
	}
	return &llm.Response{Text: g.responses[call-1]}, nil
}

func testLoopSettings(maxSteps int) *config.Settings {
	return &config.Settings{
		Model:    "test-model",
		Provider: config.ProviderAnthropic,
		MaxSteps: maxSteps,
	}
}

func newTestLoop(t *testing.T, gateway llm.Gateway, confirmations string, maxSteps int) (*Loop, *history.Store, *bytes.Buffer) {
	t.Helper()

	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), 50)
	require.NoError(t, err)

	var out bytes.Buffer
	confirmGate := gate.New(strings.NewReader(confirmations), &out, 0, nil)

	loop := New(testLoopSettings(maxSteps), gateway, confirmGate, store, contexts.Block{}, &out, nil)
	return loop, store, &out
}

func TestRunProseOnlyEndsTask(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"Nothing to run, you are already on the main branch."}}
	loop, store, out := newTestLoop(t, gateway, "", 10)

	err := loop.Run(context.Background(), "switch to main")
	require.NoError(t, err)

	assert.Len(t, gateway.requests, 1)
	assert.Contains(t, out.String(), "already on the main branch")

	turns, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "switch to main", turns[0].Utterance)
	assert.Empty(t, turns[0].Command)
	assert.Empty(t, turns[0].Decision)
}

func TestRunCancelledCommandEndsTask(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"Delete it:\n```sh\nrm -rf /tmp/scratch\n```"}}
	loop, store, _ := newTestLoop(t, gateway, "n\n", 10)

	err := loop.Run(context.Background(), "clean up scratch space")
	require.NoError(t, err)

	assert.Len(t, gateway.requests, 1)

	turns, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "rm -rf /tmp/scratch", turns[0].Command)
	assert.Equal(t, history.DecisionCancelled, turns[0].Decision)
	assert.False(t, turns[0].ExitCode.Valid)
}

func TestRunCopiedCommandEndsTask(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"```sh\nls -la\n```"}}

	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), 50)
	require.NoError(t, err)

	var out bytes.Buffer
	confirmGate := gate.New(strings.NewReader("c\n"), &out, 0, nil)
	confirmGate.SetCopyFunc(func(string) error { return nil })

	loop := New(testLoopSettings(10), gateway, confirmGate, store, contexts.Block{}, &out, nil)

	require.NoError(t, loop.Run(context.Background(), "show files"))

	turns, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, history.DecisionCopied, turns[0].Decision)
}

func TestRunFoldsOutputIntoNextStep(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{
		"Check the file:\n```sh\necho hello-from-step-one\n```",
		"The file looks fine, nothing else to do.",
	}}
	loop, store, _ := newTestLoop(t, gateway, "y\n", 10)

	err := loop.Run(context.Background(), "inspect the file")
	require.NoError(t, err)

	require.Len(t, gateway.requests, 2)

	second := gateway.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleUser, second.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, llm.RoleUser, second.Messages[2].Role)

	feedback := second.Messages[2].Content
	assert.Contains(t, feedback, "exited with code 0")
	assert.Contains(t, feedback, "hello-from-step-one")

	turns, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.DecisionExecuted, turns[0].Decision)
	assert.True(t, turns[0].ExitCode.Valid)
	assert.Equal(t, int32(0), turns[0].ExitCode.Int32)
	assert.Contains(t, turns[0].Output, "hello-from-step-one")
}

func TestRunStepLimit(t *testing.T) {
	command := "```sh\ntrue\n```"
	gateway := &scriptedGateway{responses: []string{command, command, command}}
	loop, _, _ := newTestLoop(t, gateway, "y\ny\ny\n", 2)

	err := loop.Run(context.Background(), "keep going forever")

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Steps)
	assert.Len(t, gateway.requests, 2)
}

func TestRunGatewayErrorPropagates(t *testing.T) {
	gateway := &scriptedGateway{err: &llm.GatewayError{Kind: llm.ErrAuth, Err: errors.New("bad key")}}
	loop, store, _ := newTestLoop(t, gateway, "", 10)

	err := loop.Run(context.Background(), "anything")

	var gatewayErr *llm.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, llm.ErrAuth, gatewayErr.Kind)

	// A failed call leaves no partial turn behind.
	count, countErr := store.Count()
	require.NoError(t, countErr)
	assert.Equal(t, int64(0), count)
}

func TestSystemPromptCarriesContextAndHistory(t *testing.T) {
	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), 50)
	require.NoError(t, err)
	require.NoError(t, store.Append(&history.Turn{
		Utterance: "earlier question",
		Command:   "ls",
		Decision:  history.DecisionExecuted,
	}))

	block := contexts.Block{Segments: []contexts.Segment{
		{Name: "work", Content: "We deploy with make release."},
	}}

	gateway := &scriptedGateway{responses: []string{"Understood."}}
	var out bytes.Buffer
	confirmGate := gate.New(strings.NewReader(""), &out, 0, nil)
	loop := New(testLoopSettings(10), gateway, confirmGate, store, block, &out, nil)

	require.NoError(t, loop.Run(context.Background(), "how do we deploy"))

	require.Len(t, gateway.requests, 1)
	system := gateway.requests[0].System
	assert.Contains(t, system, "### Context: work")
	assert.Contains(t, system, "make release")
	assert.Contains(t, system, "earlier question")
	assert.Contains(t, system, "`ls`")
}

func TestTruncateOutput(t *testing.T) {
	small := "short output"
	assert.Equal(t, small, truncateOutput(small))

	large := strings.Repeat("x", maxCapturedOutput+1000)
	truncated := truncateOutput(large)
	assert.Less(t, len(truncated), len(large))
	assert.Contains(t, truncated, "omitted")
}

func TestFoldResultNoOutput(t *testing.T) {
	folded := foldResult(&gate.Result{Command: "true", State: gate.StateCompleted})
	assert.Contains(t, folded, "exited with code 0")
	assert.Contains(t, folded, "no output")
}

func TestFoldResultSpawnFailure(t *testing.T) {
	folded := foldResult(&gate.Result{
		Command: "nosuchtool",
		State:   gate.StateExecuting,
		ExecErr: &gate.ExecError{Command: "nosuchtool", Err: fmt.Errorf("executable not found")},
	})
	assert.Contains(t, folded, "could not be started")
	assert.Contains(t, folded, "executable not found")
}
