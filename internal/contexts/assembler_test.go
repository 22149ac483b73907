package contexts

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taicli/tai/internal/config"
)

func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(previous)
	})
	return dir
}

func writeContext(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+ContextFileSuffix), []byte(content), 0644))
}

func TestAssembleNoContext(t *testing.T) {
	chdirTemp(t)
	contextDir := t.TempDir()
	writeContext(t, contextDir, "work", "work context")

	assembler := NewAssemblerForTesting(nil, contextDir, &bytes.Buffer{})
	settings := &config.Settings{GlobalContexts: []string{"work"}}

	block, loadErrors := assembler.Assemble(settings, "work", true)

	assert.Empty(t, loadErrors)
	assert.True(t, block.Empty())
	assert.Equal(t, "", block.Render())
}

func TestAssembleOrdering(t *testing.T) {
	workDir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, LocalContextName), []byte("local notes"), 0644))

	contextDir := t.TempDir()
	writeContext(t, contextDir, "explicit", "explicit notes")
	writeContext(t, contextDir, "global", "global notes")

	assembler := NewAssemblerForTesting(nil, contextDir, &bytes.Buffer{})
	settings := &config.Settings{GlobalContexts: []string{"global"}}

	block, loadErrors := assembler.Assemble(settings, "explicit", false)

	assert.Empty(t, loadErrors)
	assert.Equal(t, []string{"local", "explicit", "global"}, block.Names())

	rendered := block.Render()
	assert.Contains(t, rendered, "### Context: local")
	assert.Contains(t, rendered, "local notes")
	assert.Less(t, indexOf(rendered, "local notes"), indexOf(rendered, "explicit notes"))
	assert.Less(t, indexOf(rendered, "explicit notes"), indexOf(rendered, "global notes"))
}

func TestAssembleDeduplicatesNames(t *testing.T) {
	chdirTemp(t)
	contextDir := t.TempDir()
	writeContext(t, contextDir, "work", "work context")

	assembler := NewAssemblerForTesting(nil, contextDir, &bytes.Buffer{})
	settings := &config.Settings{GlobalContexts: []string{"work", "work"}}

	block, loadErrors := assembler.Assemble(settings, "work", false)

	assert.Empty(t, loadErrors)
	assert.Equal(t, []string{"work"}, block.Names())
}

func TestAssembleMissingNameWarns(t *testing.T) {
	chdirTemp(t)
	contextDir := t.TempDir()

	var warnings bytes.Buffer
	assembler := NewAssemblerForTesting(nil, contextDir, &warnings)
	settings := &config.Settings{}

	block, loadErrors := assembler.Assemble(settings, "missing", false)

	assert.Empty(t, loadErrors)
	assert.True(t, block.Empty())
	assert.Contains(t, warnings.String(), "context 'missing' not found")
}

func TestAssembleUnreadableFileCollected(t *testing.T) {
	chdirTemp(t)
	contextDir := t.TempDir()

	// A directory where a file is expected makes the read fail while the
	// path still exists.
	require.NoError(t, os.Mkdir(filepath.Join(contextDir, "broken"+ContextFileSuffix), 0755))

	var warnings bytes.Buffer
	assembler := NewAssemblerForTesting(nil, contextDir, &warnings)

	block, loadErrors := assembler.Assemble(&config.Settings{}, "broken", false)

	assert.True(t, block.Empty())
	require.Len(t, loadErrors, 1)

	var loadErr *LoadError
	require.ErrorAs(t, loadErrors[0], &loadErr)
	assert.Contains(t, loadErr.Path, "broken")
}

func indexOf(s, substr string) int {
	return bytes.Index([]byte(s), []byte(substr))
}
