package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind identifies one of the supported local-first providers.
type Kind string

const (
	KindOpenrouter Kind = "openrouter"
	KindLmstudio   Kind = "lmstudio"
	KindOllama     Kind = "ollama"
	KindLlamaCpp   Kind = "llama_cpp"
)

const DefaultModelRef = "openrouter/auto"

func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "openrouter":
		return KindOpenrouter, true
	case "lmstudio", "lm_studio":
		return KindLmstudio, true
	case "ollama":
		return KindOllama, true
	case "llama_cpp", "llamacpp", "llama.cpp":
		return KindLlamaCpp, true
	default:
		return "", false
	}
}

func (k Kind) DefaultBaseURL() string {
	switch k {
	case KindOpenrouter:
		return "https://openrouter.ai/api/v1"
	case KindLmstudio:
		return "http://localhost:1234/v1"
	case KindOllama:
		return "http://localhost:11434/v1"
	case KindLlamaCpp:
		return "http://localhost:8080/v1"
	default:
		return ""
	}
}

// ParseModelRef splits a "provider/model" reference. When the first segment
// is not a known provider kind the whole reference is treated as a model id
// on the default kind, so bare model names still resolve.
func ParseModelRef(ref string) (Kind, string) {
	trimmed := strings.TrimSpace(ref)
	if prefix, rest, ok := strings.Cut(trimmed, "/"); ok {
		if kind, known := ParseKind(prefix); known {
			return kind, rest
		}
	}
	return KindOpenrouter, trimmed
}

type Settings struct {
	Kind    Kind   `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Enabled bool   `yaml:"enabled"`
}

type settingsFile struct {
	Providers []Settings `yaml:"providers"`
}

// Registry loads per-provider runtime settings from a YAML file, writing
// defaults on first use. Unknown kinds in the file are rejected.
type Registry struct {
	path string

	mu       sync.RWMutex
	settings map[Kind]Settings
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("provider settings path is required")
	}
	r := &Registry{path: path, settings: make(map[Kind]Settings)}
	if err := r.ensureDefaults(); err != nil {
		return nil, err
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) ensureDefaults() error {
	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat provider settings %q: %w", r.path, err)
	}

	defaults := settingsFile{Providers: []Settings{
		{Kind: KindOpenrouter, BaseURL: KindOpenrouter.DefaultBaseURL(), Enabled: false},
		{Kind: KindLmstudio, BaseURL: KindLmstudio.DefaultBaseURL(), Enabled: true},
		{Kind: KindOllama, BaseURL: KindOllama.DefaultBaseURL(), Enabled: true},
		{Kind: KindLlamaCpp, BaseURL: KindLlamaCpp.DefaultBaseURL(), Enabled: true},
	}}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create provider settings dir: %w", err)
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to encode default provider settings: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write default provider settings: %w", err)
	}
	return nil
}

func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read provider settings %q: %w", r.path, err)
	}
	var parsed settingsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("invalid provider settings %q: %w", r.path, err)
	}

	loaded := make(map[Kind]Settings, len(parsed.Providers))
	for _, entry := range parsed.Providers {
		kind, ok := ParseKind(string(entry.Kind))
		if !ok {
			return fmt.Errorf("unknown provider kind %q in %q", entry.Kind, r.path)
		}
		entry.Kind = kind
		if strings.TrimSpace(entry.BaseURL) == "" {
			entry.BaseURL = kind.DefaultBaseURL()
		}
		loaded[kind] = entry
	}

	r.mu.Lock()
	r.settings = loaded
	r.mu.Unlock()
	return nil
}

// Get returns the runtime settings for a provider kind. Kinds absent from
// the settings file fall back to defaults with the provider disabled.
func (r *Registry) Get(kind Kind) Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.settings[kind]; ok {
		return entry
	}
	return Settings{Kind: kind, BaseURL: kind.DefaultBaseURL(), Enabled: false}
}
