package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders model prose to styled terminal output. Falls back to
// the raw text when the renderer cannot be constructed (e.g. no TTY
// capabilities detected).
type Markdown struct {
	renderer *glamour.TermRenderer
	out      io.Writer
}

// NewMarkdown creates a markdown renderer writing to out.
func NewMarkdown(out io.Writer) *Markdown {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		renderer = nil
	}
	return &Markdown{renderer: renderer, out: out}
}

// Print renders markdown text to the output writer.
func (m *Markdown) Print(text string) {
	if m.renderer == nil {
		fmt.Fprintln(m.out, strings.TrimRight(text, "\n"))
		return
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		fmt.Fprintln(m.out, strings.TrimRight(text, "\n"))
		return
	}
	fmt.Fprint(m.out, rendered)
}
