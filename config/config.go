// Package config — .modlate.yaml configuration file support.
//
// The file is the sole source of truth for a project: the games being
// translated, the translation provider, the tracking repository, and the
// queue pacing. Every run loads it from the project root.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pdxkit/modlate/settings"
	"github.com/pdxkit/modlate/xlate"
)

// FileName is the default config file name.
const FileName = ".modlate.yaml"

// File is the top-level .modlate.yaml structure.
type File struct {
	// Games maps a game id (used as tracking label) to its settings.
	Games map[string]GameConfig `yaml:"games"`
	// Provider configures the translation backend.
	Provider Provider `yaml:"provider"`
	// Tracking configures the external tracking repository.
	Tracking Tracking `yaml:"tracking"`
	// Queue configures the dispatch queue.
	Queue Queue `yaml:"queue,omitempty"`
	// WorkList is the pending-entry file read by the translate command,
	// relative to the project root (default "pending.json").
	WorkList string `yaml:"work_list,omitempty"`
	// Report is the unresolved-items report path, relative to the project
	// root (default "untranslated.json").
	Report string `yaml:"report,omitempty"`
	// Translations is where completed translations are written, relative
	// to the project root (default "translated.json").
	Translations string `yaml:"translations,omitempty"`
}

// GameConfig describes one supported game.
type GameConfig struct {
	// DisplayName appears in tracking record titles (e.g. "CK3").
	DisplayName string `yaml:"display_name"`
}

// Provider configures the translation API endpoint.
type Provider struct {
	// Format: "gemini" or "openai-chat" (default "openai-chat").
	Format string `yaml:"format,omitempty"`
	// BaseURL is the API base URL.
	BaseURL string `yaml:"base_url"`
	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	// Lookup order: this variable, then the credential store entry for
	// the provider format.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// Proxy is an optional proxy URL (falls back to HTTP_PROXY et al.).
	Proxy string `yaml:"proxy,omitempty"`
	// TimeoutSeconds is the per-request timeout (default 120).
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// SystemPrompt overrides the built-in translation prompt.
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

// Tracking configures the tracking record store.
type Tracking struct {
	// Repo is the GitHub repository in "owner/name" form.
	Repo string `yaml:"repo"`
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string `yaml:"base_url,omitempty"`
	// TokenEnv names the environment variable holding the API token
	// (default "GITHUB_TOKEN"); the credential store is the fallback.
	TokenEnv string `yaml:"token_env,omitempty"`
}

// Queue configures dispatch pacing.
type Queue struct {
	// MinIntervalMS is the minimum spacing between provider calls in
	// milliseconds (default 100).
	MinIntervalMS int `yaml:"min_interval_ms,omitempty"`
}

// defaultSystemPrompt is used when the config does not override it.
const defaultSystemPrompt = "You are a professional game localization translator. " +
	"Translate the given Paradox-game localization string into Korean, preserving " +
	"all formatting codes, brackets, and variable references exactly. " +
	"Reply with the translation only."

// Load reads and validates .modlate.yaml from the given directory.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Defaults
	if f.Provider.Format == "" {
		f.Provider.Format = xlate.FormatOpenAIChat
	}
	if f.Provider.TimeoutSeconds <= 0 {
		f.Provider.TimeoutSeconds = 120
	}
	if f.Provider.SystemPrompt == "" {
		f.Provider.SystemPrompt = defaultSystemPrompt
	}
	if f.Tracking.TokenEnv == "" {
		f.Tracking.TokenEnv = "GITHUB_TOKEN"
	}
	if f.Queue.MinIntervalMS <= 0 {
		f.Queue.MinIntervalMS = 100
	}
	if f.WorkList == "" {
		f.WorkList = "pending.json"
	}
	if f.Report == "" {
		f.Report = "untranslated.json"
	}
	if f.Translations == "" {
		f.Translations = "translated.json"
	}

	// Validate
	if len(f.Games) == 0 {
		return nil, fmt.Errorf("%s: no games configured", path)
	}
	for id, g := range f.Games {
		if g.DisplayName == "" {
			return nil, fmt.Errorf("%s: game %q has no display_name", path, id)
		}
	}
	switch f.Provider.Format {
	case xlate.FormatOpenAIChat, xlate.FormatGeminiNative:
	default:
		return nil, fmt.Errorf("%s: unknown provider format %q (valid: %s, %s)",
			path, f.Provider.Format, xlate.FormatOpenAIChat, xlate.FormatGeminiNative)
	}
	if f.Provider.BaseURL == "" {
		return nil, fmt.Errorf("%s: provider has no base_url", path)
	}
	if f.Provider.Model == "" {
		return nil, fmt.Errorf("%s: provider has no model", path)
	}
	if f.Tracking.Repo != "" && strings.Count(f.Tracking.Repo, "/") != 1 {
		return nil, fmt.Errorf("%s: tracking repo %q is not in owner/name form", path, f.Tracking.Repo)
	}

	return &f, nil
}

// MinInterval returns the queue spacing as a duration.
func (f *File) MinInterval() time.Duration {
	return time.Duration(f.Queue.MinIntervalMS) * time.Millisecond
}

// ProviderAPIKey resolves the provider API key: named environment variable
// first, then the credential store.
func (f *File) ProviderAPIKey() string {
	if f.Provider.APIKeyEnv != "" {
		if v := os.Getenv(f.Provider.APIKeyEnv); v != "" {
			return v
		}
	}
	return settings.GetAPIKey(f.Provider.Format)
}

// TrackingToken resolves the tracking store token: named environment
// variable first, then the credential store.
func (f *File) TrackingToken() string {
	if v := os.Getenv(f.Tracking.TokenEnv); v != "" {
		return v
	}
	return settings.GetAPIKey("github")
}
