// Package contexts assembles the context block that accompanies each
// request to the model. Context documents are plain text files loaded once
// per invocation; missing optional sources are skipped, never fatal.
package contexts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/taicli/tai/internal/config"
	"github.com/taicli/tai/internal/core"
)

// LocalContextName is the project-local context document, looked up in the
// working directory and then the git toplevel.
const LocalContextName = ".tai.context.md"

// ContextFileSuffix is the suffix of named context files in the user
// context directory.
const ContextFileSuffix = ".context.md"

// Segment is one context document with its provenance name.
type Segment struct {
	Name    string
	Content string
}

// Block is an ordered sequence of context segments: local first, explicit
// named next, global-list named last.
type Block struct {
	Segments []Segment
}

// Empty reports whether the block carries no context at all.
func (b Block) Empty() bool {
	return len(b.Segments) == 0
}

// Render concatenates the segments, each introduced by a provenance
// delimiter so the model can tell the sources apart.
func (b Block) Render() string {
	if b.Empty() {
		return ""
	}
	var sb strings.Builder
	for _, segment := range b.Segments {
		fmt.Fprintf(&sb, "### Context: %s\n\n%s\n\n", segment.Name, strings.TrimRight(segment.Content, "\n"))
	}
	return sb.String()
}

// Names returns the provenance names of all segments, for display.
func (b Block) Names() []string {
	return lo.Map(b.Segments, func(segment Segment, _ int) string {
		return segment.Name
	})
}

// LoadError reports a context file that exists but could not be read.
// The segment is omitted and assembly continues.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to read context file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Assembler loads and concatenates context documents.
type Assembler struct {
	logger     *zap.Logger
	contextDir string
	warnings   io.Writer
}

// NewAssembler creates an Assembler reading named contexts from the user
// context directory. The logger is optional.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		logger:     logger,
		contextDir: core.ContextDir(),
		warnings:   os.Stderr,
	}
}

// NewAssemblerForTesting creates an Assembler rooted at an explicit context
// directory with warnings captured by the given writer.
func NewAssemblerForTesting(logger *zap.Logger, contextDir string, warnings io.Writer) *Assembler {
	assembler := NewAssembler(logger)
	assembler.contextDir = contextDir
	assembler.warnings = warnings
	return assembler
}

// Assemble produces the context block for one invocation.
//
// If nocontext is set the block is empty regardless of other inputs.
// Otherwise the local document is loaded if present, then the explicitly
// named context, then the names from the global list, deduplicated in
// order. A referenced name without a file is a warning, not a failure;
// a present-but-unreadable file is returned as a LoadError with its
// segment omitted.
func (a *Assembler) Assemble(settings *config.Settings, explicit string, nocontext bool) (Block, []error) {
	if nocontext {
		return Block{}, nil
	}

	var block Block
	var loadErrors []error

	if path, name, ok := localContextPath(); ok {
		content, err := os.ReadFile(path)
		if err != nil {
			loadErrors = append(loadErrors, a.reportUnreadable(path, err))
		} else {
			block.Segments = append(block.Segments, Segment{Name: name, Content: string(content)})
		}
	}

	var names []string
	if explicit != "" {
		names = append(names, explicit)
	}
	if settings != nil {
		names = append(names, settings.GlobalContexts...)
	}

	for _, name := range lo.Uniq(names) {
		path := filepath.Join(a.contextDir, name+ContextFileSuffix)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(a.warnings, "Warning: context '%s' not found\n", name)
				a.logger.Debug("named context not found", zap.String("name", name))
				continue
			}
			loadErrors = append(loadErrors, a.reportUnreadable(path, err))
			continue
		}
		block.Segments = append(block.Segments, Segment{Name: name, Content: string(content)})
	}

	return block, loadErrors
}

func (a *Assembler) reportUnreadable(path string, err error) error {
	loadErr := &LoadError{Path: path, Err: err}
	fmt.Fprintf(a.warnings, "Warning: %v\n", loadErr)
	a.logger.Warn("context file unreadable", zap.String("path", path), zap.Error(err))
	return loadErr
}

// localContextPath locates the project-local context document, checking
// the working directory first and the git toplevel second.
func localContextPath() (string, string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", false
	}

	candidate := filepath.Join(cwd, LocalContextName)
	if stat, err := os.Stat(candidate); err == nil && !stat.IsDir() {
		return candidate, "local", true
	}

	if root, ok := config.GitRoot(); ok {
		candidate = filepath.Join(root, LocalContextName)
		if stat, err := os.Stat(candidate); err == nil && !stat.IsDir() {
			return candidate, "project", true
		}
	}

	return "", "", false
}
