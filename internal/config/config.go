package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the redline configuration.
type Config struct {
	Provider           string   `json:"provider" yaml:"provider"`
	Model              string   `json:"model" yaml:"model"`
	Format             string   `json:"format" yaml:"format"`
	SeverityThreshold  string   `json:"severityThreshold" yaml:"severityThreshold"`
	MaxComments        int      `json:"maxComments" yaml:"maxComments"`
	MaxFiles           int      `json:"maxFiles" yaml:"maxFiles"`
	MaxChunkLines      int      `json:"maxChunkLines" yaml:"maxChunkLines"`
	MaxWorkers         int      `json:"maxWorkers" yaml:"maxWorkers"`
	MaxRetries         int      `json:"maxRetries" yaml:"maxRetries"`
	RunBudgetSeconds   int      `json:"runBudgetSeconds" yaml:"runBudgetSeconds"`
	CallTimeoutSeconds int      `json:"callTimeoutSeconds" yaml:"callTimeoutSeconds"`
	SkipPatterns       []string `json:"skipPatterns" yaml:"skipPatterns"`
	BlockingWarnCats   []string `json:"blockingWarnCategories" yaml:"blockingWarnCategories"`
	LogLevel           string   `json:"logLevel" yaml:"logLevel"`
	// RedactSecrets is a pointer so a file or overlay can set it to false;
	// nil means "not set" and falls back to the default.
	RedactSecrets *bool `json:"redactSecrets" yaml:"redactSecrets"`
}

// RedactEnabled reports whether diff content is redacted before leaving
// the process. Unset means enabled.
func (c Config) RedactEnabled() bool {
	return c.RedactSecrets == nil || *c.RedactSecrets
}

func boolPtr(v bool) *bool { return &v }

// RepoOverlayFile is the per-repository override file, read from the
// working directory.
const RepoOverlayFile = ".redline.yml"

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:           "anthropic",
		Model:              "claude-sonnet-4-20250514",
		Format:             "text",
		SeverityThreshold:  "info",
		MaxComments:        20,
		MaxFiles:           50,
		MaxChunkLines:      300,
		MaxWorkers:         4,
		MaxRetries:         2,
		RunBudgetSeconds:   300,
		CallTimeoutSeconds: 120,
		BlockingWarnCats:   []string{"security"},
		LogLevel:           "info",
		RedactSecrets:      boolPtr(true),
	}
}

// ConfigDir returns the platform-appropriate config directory for redline.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "redline"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "redline"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "redline"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "redline"), nil
	default:
		return filepath.Join(home, ".config", "redline"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads config from the config file. Returns zero Config and nil
// error if the file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadRepoOverlay reads the per-repository .redline.yml from dir. A
// missing file yields a zero Config and nil error.
func LoadRepoOverlay(dir string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, RepoOverlayFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", RepoOverlayFile, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", RepoOverlayFile, err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging:
// defaults <- file <- repo overlay <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(workDir string, overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	merge(&cfg, fileCfg)

	overlay, err := LoadRepoOverlay(workDir)
	if err != nil {
		return Config{}, err
	}
	merge(&cfg, overlay)

	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.SeverityThreshold != "" {
		dst.SeverityThreshold = src.SeverityThreshold
	}
	if src.MaxComments > 0 {
		dst.MaxComments = src.MaxComments
	}
	if src.MaxFiles > 0 {
		dst.MaxFiles = src.MaxFiles
	}
	if src.MaxChunkLines > 0 {
		dst.MaxChunkLines = src.MaxChunkLines
	}
	if src.MaxWorkers > 0 {
		dst.MaxWorkers = src.MaxWorkers
	}
	if src.MaxRetries > 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.RunBudgetSeconds > 0 {
		dst.RunBudgetSeconds = src.RunBudgetSeconds
	}
	if src.CallTimeoutSeconds > 0 {
		dst.CallTimeoutSeconds = src.CallTimeoutSeconds
	}
	if len(src.SkipPatterns) > 0 {
		dst.SkipPatterns = src.SkipPatterns
	}
	if len(src.BlockingWarnCats) > 0 {
		dst.BlockingWarnCats = src.BlockingWarnCats
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.RedactSecrets != nil {
		dst.RedactSecrets = src.RedactSecrets
	}
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("REDLINE_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("REDLINE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REDLINE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("REDLINE_SEVERITY_THRESHOLD"); v != "" {
		cfg.SeverityThreshold = v
	}
	if v := os.Getenv("REDLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDLINE_MAX_COMMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxComments = n
		}
	}
	if v := os.Getenv("REDLINE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}
	if v := os.Getenv("REDLINE_RUN_BUDGET_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RunBudgetSeconds = n
		}
	}
	if v := os.Getenv("REDLINE_SKIP_PATTERNS"); v != "" {
		cfg.SkipPatterns = splitList(v)
	}
	if v := os.Getenv("REDLINE_REDACT_SECRETS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RedactSecrets = boolPtr(b)
		}
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["provider"]; ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := overrides["model"]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := overrides["format"]; ok && v != "" {
		cfg.Format = v
	}
	if v, ok := overrides["severityThreshold"]; ok && v != "" {
		cfg.SeverityThreshold = v
	}
	if v, ok := overrides["maxComments"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxComments = n
		}
	}
	if v, ok := overrides["budgetSeconds"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RunBudgetSeconds = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GitHubToken returns the API token. Missing credentials fail fast before
// any stage runs.
func GitHubToken() (string, error) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		return v, nil
	}
	if v := os.Getenv("REDLINE_GITHUB_TOKEN"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("GITHUB_TOKEN environment variable is not set")
}

// GitHubAPIURL returns the API base URL override for GitHub Enterprise,
// or empty for github.com.
func GitHubAPIURL() string {
	return os.Getenv("GITHUB_API_URL")
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "format":
		cfg.Format = value
	case "severityThreshold":
		cfg.SeverityThreshold = value
	case "logLevel":
		cfg.LogLevel = value
	case "maxComments":
		return setInt(&cfg.MaxComments, key, value)
	case "maxFiles":
		return setInt(&cfg.MaxFiles, key, value)
	case "maxChunkLines":
		return setInt(&cfg.MaxChunkLines, key, value)
	case "maxWorkers":
		return setInt(&cfg.MaxWorkers, key, value)
	case "maxRetries":
		return setInt(&cfg.MaxRetries, key, value)
	case "runBudgetSeconds":
		return setInt(&cfg.RunBudgetSeconds, key, value)
	case "callTimeoutSeconds":
		return setInt(&cfg.CallTimeoutSeconds, key, value)
	case "skipPatterns":
		cfg.SkipPatterns = splitList(value)
	case "blockingWarnCategories":
		cfg.BlockingWarnCats = splitList(value)
	case "redactSecrets":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		cfg.RedactSecrets = boolPtr(b)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}
