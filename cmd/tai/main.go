package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/taicli/tai/internal/config"
	"github.com/taicli/tai/internal/contexts"
	"github.com/taicli/tai/internal/core"
	"github.com/taicli/tai/internal/gate"
	"github.com/taicli/tai/internal/history"
	"github.com/taicli/tai/internal/llm"
	"github.com/taicli/tai/internal/task"
)

var BUILD_VERSION = "dev"

// Exit codes. Cancelling a command is a normal outcome, not a failure.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitLimit   = 3
)

var (
	contextFlag      string
	nocontextFlag    bool
	clearHistoryFlag bool
	globalFlag       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tai [message...]",
		Short: "Translate natural language into shell commands",
		Long: `tai is a command line assistant. Describe what you want done and tai
proposes a shell command, asks for confirmation, and iterates on the
captured output until the task is complete.

Run with no arguments in a terminal to enter interactive mode; enter an
empty line to leave it.`,
		Version:       BUILD_VERSION,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), args)
		},
	}

	rootCmd.Flags().StringVar(&contextFlag, "context", "", "include the named context from the context directory")
	rootCmd.Flags().BoolVar(&nocontextFlag, "nocontext", false, "send the request without any context documents")
	rootCmd.Flags().BoolVar(&clearHistoryFlag, "clear-history", false, "delete all stored conversation history before running")

	configCmd := &cobra.Command{
		Use:   "config [key [value]]",
		Short: "Show or change configuration",
		Long: `With no arguments, print the effective configuration. With a key, print
that key's effective value. With a key and a value, write the value to the
project-local config file, or the global one with --global.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(args)
		},
	}
	configCmd.Flags().BoolVar(&globalFlag, "global", false, "write to the global config file instead of the local one")
	rootCmd.AddCommand(configCmd)

	err := rootCmd.ExecuteContext(context.Background())
	os.Exit(exitCode(err))
}

// exitCode maps boundary errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "tai: %v\n", err)

	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) {
		return exitConfig
	}
	var limitErr *task.LimitError
	if errors.As(err, &limitErr) {
		return exitLimit
	}
	return exitFailure
}

func runRoot(ctx context.Context, args []string) error {
	settings, err := config.NewResolver(nil).Resolve()
	if err != nil {
		return err
	}

	logger, err := initializeLogger(settings.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("-------- new tai invocation --------", zap.Any("args", os.Args))

	store, err := history.NewStore(history.DefaultPath(), settings.HistoryLimit)
	if err != nil {
		// History is an aid, not a requirement; run without it.
		fmt.Fprintf(os.Stderr, "Warning: history unavailable: %v\n", err)
		logger.Warn("history store unavailable", zap.Error(err))
		store = nil
	}

	if clearHistoryFlag {
		if store == nil {
			return fmt.Errorf("cannot clear history: store unavailable")
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Println("History cleared.")
		if len(args) == 0 {
			return nil
		}
	}

	block, loadErrors := contexts.NewAssembler(logger).Assemble(settings, contextFlag, nocontextFlag)
	for _, loadErr := range loadErrors {
		logger.Warn("context assembly issue", zap.Error(loadErr))
	}

	gateway, err := llm.NewGateway(settings, logger)
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	confirmGate := gate.New(stdin, os.Stdout, settings.ConfirmTimeout, logger)
	loop := task.New(settings, gateway, confirmGate, store, block, os.Stdout, logger)

	utterance := strings.TrimSpace(strings.Join(args, " "))
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	if !interactive {
		// Piped invocation: stdin is the request, or the subject of the
		// request when arguments are also given.
		piped, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if content := strings.TrimSpace(string(piped)); content != "" {
			if utterance == "" {
				utterance = content
			} else {
				utterance = utterance + "\n\n" + content
			}
		}
	}

	if utterance != "" {
		return loop.Run(ctx, utterance)
	}

	if !interactive {
		return fmt.Errorf("no request given")
	}

	return runInteractive(ctx, loop, stdin)
}

// runInteractive reads one request per line until an empty line or EOF.
// Task errors are reported per request; they end the request, not the
// session.
func runInteractive(ctx context.Context, loop *task.Loop, stdin *bufio.Reader) error {
	fmt.Println("Enter a request per line. An empty line exits.")

	for {
		fmt.Print("tai> ")
		line, err := stdin.ReadString('\n')
		utterance := strings.TrimSpace(line)
		if utterance == "" {
			return nil
		}

		if runErr := loop.Run(ctx, utterance); runErr != nil {
			fmt.Fprintf(os.Stderr, "tai: %v\n", runErr)
		}

		if err != nil {
			return nil
		}
	}
}

func runConfig(args []string) error {
	switch len(args) {
	case 0:
		merged, err := effectiveValues()
		if err != nil {
			return err
		}
		for _, key := range config.KnownKeys() {
			fmt.Printf("%s = %s\n", key, config.MaskValue(key, merged[key]))
		}
		return nil
	case 1:
		merged, err := effectiveValues()
		if err != nil {
			return err
		}
		key := args[0]
		if !config.IsKnownKey(key) {
			fmt.Fprintf(os.Stderr, "Warning: unrecognized config key %q\n", key)
		}
		fmt.Println(config.MaskValue(key, merged[key]))
		return nil
	default:
		key, value := args[0], args[1]
		if err := config.SetValue(key, value, globalFlag); err != nil {
			return err
		}
		fmt.Printf("Set %s in %s\n", key, config.WriteTarget(globalFlag))
		return nil
	}
}

// effectiveValues merges all settings sources without validating, so the
// display works even while a value is broken.
func effectiveValues() (map[string]string, error) {
	global, err := config.LoadFile(core.ConfigFile())
	if err != nil {
		return nil, err
	}

	local := map[string]string{}
	if localPath, ok := config.LocalConfigPath(); ok {
		local, err = config.LoadFile(localPath)
		if err != nil {
			return nil, err
		}
	}

	return config.Merge(config.Defaults(), global, local, config.EnvSource()), nil
}

func initializeLogger(level string) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}

	return loggerConfig.Build()
}
