// Package config loads guidesync settings from viper (flags, GUIDESYNC_*
// environment variables and guidesync.yaml) and applies named profiles on top
// of the base configuration.
package config

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/guidesync/pkg/selector"
	"github.com/jingkaihe/guidesync/pkg/telemetry"
	"github.com/jingkaihe/guidesync/pkg/types/guide"
	"github.com/jingkaihe/guidesync/pkg/version"
)

const (
	// EnvPrefix is the prefix of environment variable overrides
	EnvPrefix = "GUIDESYNC"
	// FileName is the config file name without extension
	FileName = "guidesync"
	// FileType is the config file format
	FileType = "yaml"
	// HomeDirName is the per-user configuration directory under $HOME
	HomeDirName = ".guidesync"
)

// Config is the complete guidesync configuration.
type Config struct {
	Source      string                    `mapstructure:"source" yaml:"source"`
	Documents   DocumentsConfig           `mapstructure:"documents" yaml:"documents"`
	Detect      DetectConfig              `mapstructure:"detect" yaml:"detect"`
	Fetch       FetchConfig               `mapstructure:"fetch" yaml:"fetch"`
	Output      OutputConfig              `mapstructure:"output" yaml:"output"`
	Concurrency int                       `mapstructure:"concurrency" yaml:"concurrency"`
	Yes         bool                      `mapstructure:"yes" yaml:"yes"`
	LogLevel    string                    `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string                    `mapstructure:"log_format" yaml:"log_format"`
	Tracing     telemetry.Config          `mapstructure:"tracing" yaml:"tracing"`
	Profile     string                    `mapstructure:"profile" yaml:"profile,omitempty"`
	Profiles    map[string]map[string]any `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

// DocumentsConfig locates documents relative to Source.
type DocumentsConfig struct {
	Base      string                       `mapstructure:"base" yaml:"base"`
	Languages map[string]LanguageDocuments `mapstructure:"languages" yaml:"languages"`
}

// LanguageDocuments locates the per-language guideline and setup prompt.
type LanguageDocuments struct {
	Guideline string `mapstructure:"guideline" yaml:"guideline"`
	Setup     string `mapstructure:"setup" yaml:"setup,omitempty"`
}

// DetectConfig bounds the project directory walk.
type DetectConfig struct {
	MaxDepth int      `mapstructure:"max_depth" yaml:"max_depth"`
	Exclude  []string `mapstructure:"exclude" yaml:"exclude"`
}

// FetchConfig controls document retrieval.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries      int           `mapstructure:"retries" yaml:"retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	AllowedHosts []string      `mapstructure:"allowed_hosts" yaml:"allowed_hosts,omitempty"`
}

// OutputConfig names the files written into each project.
type OutputConfig struct {
	Primary   string `mapstructure:"primary" yaml:"primary"`
	Secondary string `mapstructure:"secondary" yaml:"secondary"`
	Backup    bool   `mapstructure:"backup" yaml:"backup"`
}

// DefaultExcludes are directory patterns pruned before marker search.
var DefaultExcludes = []string{
	".git", ".hg", ".svn",
	"node_modules", ".pnpm-store", ".yarn",
	"vendor",
	"dist", "build", "out", "target", "bin", "obj",
	".next", ".nuxt", ".svelte-kit", ".turbo", ".cache", ".parcel-cache",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache", ".pytest_cache", ".ruff_cache",
	"coverage", ".nyc_output",
	".idea", ".vscode",
	".terraform",
}

// Default returns the built-in configuration. Source is left empty and must
// be provided by the operator.
func Default() Config {
	languages := map[string]LanguageDocuments{}
	for _, tag := range []guide.LanguageTag{guide.LanguageGo, guide.LanguagePython, guide.LanguageRust, guide.LanguageTypeScript} {
		languages[string(tag)] = LanguageDocuments{
			Guideline: "languages/" + string(tag) + ".md",
			Setup:     "setup/" + string(tag) + ".md",
		}
	}

	return Config{
		Documents: DocumentsConfig{
			Base:      "base.md",
			Languages: languages,
		},
		Detect: DetectConfig{
			MaxDepth: 3,
			Exclude:  append([]string(nil), DefaultExcludes...),
		},
		Fetch: FetchConfig{
			Timeout:    10 * time.Second,
			Retries:    2,
			RetryDelay: 500 * time.Millisecond,
		},
		Output: OutputConfig{
			Primary:   "AGENTS.md",
			Secondary: "CLAUDE.md",
			Backup:    true,
		},
		Concurrency: 4,
		LogLevel:    "warn",
		LogFormat:   "fmt",
		Tracing:     telemetry.DefaultConfig(version.Get().Version),
	}
}

// SetDefaults registers Default() in viper so that unset keys resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("source", d.Source)
	v.SetDefault("profile", "")
	v.SetDefault("yes", d.Yes)
	v.SetDefault("documents.base", d.Documents.Base)
	for name, docs := range d.Documents.Languages {
		v.SetDefault("documents.languages."+name+".guideline", docs.Guideline)
		v.SetDefault("documents.languages."+name+".setup", docs.Setup)
	}
	v.SetDefault("detect.max_depth", d.Detect.MaxDepth)
	v.SetDefault("detect.exclude", d.Detect.Exclude)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retries", d.Fetch.Retries)
	v.SetDefault("fetch.retry_delay", d.Fetch.RetryDelay)
	v.SetDefault("output.primary", d.Output.Primary)
	v.SetDefault("output.secondary", d.Output.Secondary)
	v.SetDefault("output.backup", d.Output.Backup)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sampler", d.Tracing.SamplerType)
	v.SetDefault("tracing.ratio", d.Tracing.SamplerRatio)
}

// Init wires the global viper instance: env prefix, config search paths and
// defaults. A missing config file is not an error.
func Init() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType(FileType)
	viper.AddConfigPath(".")
	viper.AddConfigPath(filepath.Join("$HOME", HomeDirName))

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load reads the configuration from the global viper instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, applies the active profile and validates the result.
func LoadFrom(v *viper.Viper) (Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.Documents.Languages = canonicalLanguages(cfg.Documents.Languages)
	return cfg, nil
}

// LoadUnvalidated is LoadFrom without validation, for commands such as
// detect that run without a guideline source. The profile is still applied.
func LoadUnvalidated(v *viper.Viper) (Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return cfg, err
	}
	cfg.Documents.Languages = canonicalLanguages(cfg.Documents.Languages)
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if cfg.Profile != "" && cfg.Profile != "default" {
		profile, ok := cfg.Profiles[cfg.Profile]
		if !ok {
			return cfg, errors.Errorf("profile %q is not defined", cfg.Profile)
		}
		if err := applyProfile(&cfg, profile); err != nil {
			return cfg, err
		}
	}

	cfg.Tracing.ServiceName = "guidesync"
	cfg.Tracing.ServiceVersion = version.Get().Version
	return cfg, nil
}

// canonicalLanguages folds alias keys ("ts", "golang") into their canonical
// tag. Canonical keys are applied first and aliases in lexicographic order
// after them, each non-empty field overriding, so an alias entry in a config
// file wins over the built-in default for its tag. Unknown names are dropped.
func canonicalLanguages(in map[string]LanguageDocuments) map[string]LanguageDocuments {
	type entry struct {
		name string
		tag  guide.LanguageTag
		docs LanguageDocuments
	}
	entries := make([]entry, 0, len(in))
	for name, docs := range in {
		tag, err := guide.ParseLanguage(name)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: name, tag: tag, docs: docs})
	}
	sort.Slice(entries, func(i, j int) bool {
		ci, cj := entries[i].name == string(entries[i].tag), entries[j].name == string(entries[j].tag)
		if ci != cj {
			return ci
		}
		return entries[i].name < entries[j].name
	})

	out := make(map[string]LanguageDocuments, len(entries))
	for _, e := range entries {
		docs := out[string(e.tag)]
		if e.docs.Guideline != "" {
			docs.Guideline = e.docs.Guideline
		}
		if e.docs.Setup != "" {
			docs.Setup = e.docs.Setup
		}
		out[string(e.tag)] = docs
	}
	return out
}

func applyProfile(cfg *Config, profile map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ZeroFields:       false,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}
	return nil
}

// Catalog builds the document catalog rooted at Source. Language keys are
// normalised, so "ts" and "typescript" address the same entry.
func (c Config) Catalog() selector.Catalog {
	languages := canonicalLanguages(c.Documents.Languages)
	catalog := selector.Catalog{
		Root:      c.Source,
		Base:      c.Documents.Base,
		Languages: make(map[guide.LanguageTag]selector.LanguageDocuments, len(languages)),
	}
	for name, docs := range languages {
		tag := guide.LanguageTag(name)
		catalog.Languages[tag] = selector.LanguageDocuments{
			Guideline: docs.Guideline,
			Setup:     docs.Setup,
		}
	}
	return catalog
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Source) == "":
		return errors.New("no guideline source configured: set 'source' in guidesync.yaml, GUIDESYNC_SOURCE or --source")
	case strings.TrimSpace(c.Documents.Base) == "":
		return errors.New("documents.base must not be empty")
	case c.Detect.MaxDepth < 0:
		return errors.Errorf("detect.max_depth cannot be negative: %d", c.Detect.MaxDepth)
	case c.Fetch.Retries < 0 || c.Fetch.Retries > 10:
		return errors.Errorf("fetch.retries must be between 0 and 10: %d", c.Fetch.Retries)
	case c.Fetch.Timeout <= 0:
		return errors.Errorf("fetch.timeout must be positive: %s", c.Fetch.Timeout)
	case c.Concurrency < 1:
		return errors.Errorf("concurrency must be at least 1: %d", c.Concurrency)
	}

	for _, name := range []string{c.Output.Primary, c.Output.Secondary} {
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return errors.Errorf("output file name %q must be a plain file name", name)
		}
	}
	if c.Output.Primary == c.Output.Secondary {
		return errors.Errorf("output.primary and output.secondary must differ: %q", c.Output.Primary)
	}

	for name := range c.Documents.Languages {
		if _, err := guide.ParseLanguage(name); err != nil {
			return errors.Wrap(err, "documents.languages")
		}
	}
	return nil
}
