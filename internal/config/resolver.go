package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taicli/tai/internal/core"
)

// LocalConfigName is the project-local settings file, looked up in the
// working directory and then the git toplevel.
const LocalConfigName = ".tai.yaml"

// Environment variable names for recognized keys. Environment values take
// precedence over both config files.
var envNames = map[string]string{
	KeyModel:           "TAI_MODEL",
	KeyProvider:        "TAI_PROVIDER",
	KeyBaseURL:         "TAI_BASE_URL",
	KeyTemperature:     "TAI_TEMPERATURE",
	KeyMaxTokens:       "TAI_MAX_TOKENS",
	KeyAnthropicAPIKey: "ANTHROPIC_API_KEY",
	KeyOpenAIAPIKey:    "OPENAI_API_KEY",
	KeyGlobalContexts:  "TAI_GLOBAL_CONTEXTS",
	KeyHistoryLimit:    "TAI_HISTORY_LIMIT",
	KeyMaxSteps:        "TAI_MAX_STEPS",
	KeyConfirmTimeout:  "TAI_CONFIRM_TIMEOUT",
	KeyLogLevel:        "TAI_LOG_LEVEL",
}

// Merge folds key-value mappings left to right; for the same key, later
// sources override earlier ones. It is a pure function and the single
// place precedence is defined.
func Merge(sources ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, source := range sources {
		for key, value := range source {
			merged[key] = value
		}
	}
	return merged
}

// Resolver produces effective Settings from the three candidate sources.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver. The logger is optional.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve reads the global file, the local file, and the environment,
// merges them (environment > local > global), and validates the result.
func (r *Resolver) Resolve() (*Settings, error) {
	global, err := LoadFile(core.ConfigFile())
	if err != nil {
		return nil, err
	}

	local := map[string]string{}
	if localPath, ok := LocalConfigPath(); ok {
		local, err = LoadFile(localPath)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("loaded local config", zap.String("path", localPath))
	}

	merged := Merge(global, local, EnvSource())
	return Materialize(merged)
}

// EnvSource collects recognized settings from environment variables.
// Unset variables are absent from the returned map so they do not shadow
// file-provided values.
func EnvSource() map[string]string {
	source := map[string]string{}
	for key, name := range envNames {
		if value, ok := os.LookupEnv(name); ok {
			source[key] = value
		}
	}
	return source
}

// LoadFile parses a YAML settings file into a flat key-value mapping.
// A missing file yields an empty mapping; list values are flattened to
// comma-separated strings so all sources share one shape.
func LoadFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := map[string]string{}
	for key, value := range raw {
		values[key] = flattenValue(value)
	}
	return values, nil
}

func flattenValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := lo.Map(v, func(item any, _ int) string {
			return flattenValue(item)
		})
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// LocalConfigPath locates the project-local settings file, checking the
// working directory first and the git toplevel second.
func LocalConfigPath() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	candidate := filepath.Join(cwd, LocalConfigName)
	if fileExists(candidate) {
		return candidate, true
	}

	if root, ok := GitRoot(); ok {
		candidate = filepath.Join(root, LocalConfigName)
		if fileExists(candidate) {
			return candidate, true
		}
	}

	return "", false
}

// GitRoot returns the toplevel directory of the enclosing git repository.
func GitRoot() (string, bool) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", false
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return "", false
	}
	return root, true
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}

// WriteTarget returns the file a `config key value` write goes to. The
// target is explicit (--global or not) and does not alter read precedence.
func WriteTarget(global bool) string {
	if global {
		return core.ConfigFile()
	}
	if root, ok := GitRoot(); ok {
		return filepath.Join(root, LocalConfigName)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return LocalConfigName
	}
	return filepath.Join(cwd, LocalConfigName)
}

// Save writes a key-value mapping back to a settings file as YAML.
// The global_contexts key is expanded back into a list for readability.
func Save(path string, values map[string]string) error {
	doc := map[string]any{}
	for key, value := range values {
		if key == KeyGlobalContexts {
			doc[key] = SplitContextList(value)
			continue
		}
		doc[key] = value
	}

	content, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// SetValue updates one key in the explicit target file (local or global).
// For global_contexts, names whose context file does not exist are dropped
// with a warning; other known keys are validated before the write.
func SetValue(key, value string, global bool) error {
	if IsKnownKey(key) {
		if err := validateSingle(key, value); err != nil {
			return err
		}
	}

	if key == KeyGlobalContexts {
		value = strings.Join(filterExistingContexts(SplitContextList(value)), ",")
	}

	target := WriteTarget(global)
	values, err := LoadFile(target)
	if err != nil {
		return err
	}
	values[key] = value
	return Save(target, values)
}

// validateSingle runs the full materialization with a single overridden key
// so a bad write is rejected with the same ValidationError a read would hit.
func validateSingle(key, value string) error {
	_, err := Materialize(map[string]string{key: value})
	return err
}

func filterExistingContexts(names []string) []string {
	valid := lo.Filter(names, func(name string, _ int) bool {
		path := filepath.Join(core.ContextDir(), name+".context.md")
		if fileExists(path) {
			return true
		}
		fmt.Fprintf(os.Stderr, "Warning: context file does not exist: %s.context.md\n", name)
		return false
	})
	return lo.Uniq(valid)
}
