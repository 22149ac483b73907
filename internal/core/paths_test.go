package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDataDirForTesting(t *testing.T) {
	dir := t.TempDir()
	SetDataDirForTesting(dir)
	t.Cleanup(ResetPaths)

	assert.Equal(t, dir, DataDir())
	assert.Equal(t, filepath.Join(dir, "contexts"), ContextDir())
	assert.Equal(t, filepath.Join(dir, "tai.log"), LogFile())
	assert.Equal(t, filepath.Join(dir, "history.db"), HistoryFile())
	assert.Equal(t, filepath.Join(dir, "config.yaml"), ConfigFile())

	stat, err := os.Stat(ContextDir())
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}
