package core

import (
	"os"
	"path/filepath"
)

type Paths struct {
	HomeDir     string
	DataDir     string
	ContextDir  string
	LogFile     string
	HistoryFile string
	ConfigFile  string
}

var defaultPaths *Paths

func ensureDefaultPaths() {
	if defaultPaths == nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}

		dataDir := filepath.Join(homeDir, ".config", "tai")

		defaultPaths = &Paths{
			HomeDir:     homeDir,
			DataDir:     dataDir,
			ContextDir:  filepath.Join(dataDir, "contexts"),
			LogFile:     filepath.Join(dataDir, "tai.log"),
			HistoryFile: filepath.Join(dataDir, "history.db"),
			ConfigFile:  filepath.Join(dataDir, "config.yaml"),
		}

		err = os.MkdirAll(defaultPaths.ContextDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

func HomeDir() string {
	ensureDefaultPaths()
	return defaultPaths.HomeDir
}

func DataDir() string {
	ensureDefaultPaths()
	return defaultPaths.DataDir
}

func ContextDir() string {
	ensureDefaultPaths()
	return defaultPaths.ContextDir
}

func LogFile() string {
	ensureDefaultPaths()
	return defaultPaths.LogFile
}

func HistoryFile() string {
	ensureDefaultPaths()
	return defaultPaths.HistoryFile
}

func ConfigFile() string {
	ensureDefaultPaths()
	return defaultPaths.ConfigFile
}

// ResetPaths clears the cached paths, forcing them to be reinitialized.
// This is primarily used for testing purposes.
func ResetPaths() {
	defaultPaths = nil
}

// SetDataDirForTesting points all derived paths at the given directory.
// Tests use this together with t.TempDir() to avoid touching the real
// user configuration.
func SetDataDirForTesting(dir string) {
	defaultPaths = &Paths{
		HomeDir:     dir,
		DataDir:     dir,
		ContextDir:  filepath.Join(dir, "contexts"),
		LogFile:     filepath.Join(dir, "tai.log"),
		HistoryFile: filepath.Join(dir, "history.db"),
		ConfigFile:  filepath.Join(dir, "config.yaml"),
	}
	if err := os.MkdirAll(defaultPaths.ContextDir, 0755); err != nil {
		panic(err)
	}
}
