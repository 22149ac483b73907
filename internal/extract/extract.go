// Package extract identifies an executable command candidate in a model
// response, separating actionable command blocks from explanatory prose.
package extract

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// shellInfoStrings are the fence info strings that mark a shell command
// block. Blocks tagged with any other language are never candidates.
var shellInfoStrings = map[string]bool{
	"":      true,
	"sh":    true,
	"bash":  true,
	"shell": true,
	"zsh":   true,
}

// fencedBlock is one fenced code block from a markdown response.
type fencedBlock struct {
	info  string
	lines []string
}

// Command returns the single actionable shell command in a response, if
// any. A candidate is a shell-fenced block containing exactly one
// non-empty, non-comment line that parses as POSIX shell; the command is
// that line verbatim. When several candidates appear, the first is
// canonical and the rest are treated as explanatory context. A response
// without a candidate is pure text.
func Command(response string) (string, bool) {
	for _, block := range fencedBlocks(response) {
		if !shellInfoStrings[strings.ToLower(block.info)] {
			continue
		}
		command, ok := singleCommandLine(block.lines)
		if !ok {
			continue
		}
		if !parsesAsShell(command) {
			continue
		}
		return command, true
	}
	return "", false
}

// singleCommandLine returns the block's command line if exactly one line
// is neither blank nor a comment. Multi-command blocks are ambiguous and
// therefore explanatory.
func singleCommandLine(lines []string) (string, bool) {
	command := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if command != "" {
			return "", false
		}
		command = line
	}
	return command, command != ""
}

func parsesAsShell(command string) bool {
	_, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	return err == nil
}

// fencedBlocks splits a markdown response into its fenced code blocks.
// An unterminated fence runs to the end of the response.
func fencedBlocks(response string) []fencedBlock {
	var blocks []fencedBlock
	var current *fencedBlock

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)

		if current == nil {
			if strings.HasPrefix(trimmed, "```") {
				current = &fencedBlock{info: strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))}
			}
			continue
		}

		if trimmed == "```" {
			blocks = append(blocks, *current)
			current = nil
			continue
		}

		current.lines = append(current.lines, strings.TrimSuffix(line, "\r"))
	}

	if current != nil {
		blocks = append(blocks, *current)
	}

	return blocks
}
