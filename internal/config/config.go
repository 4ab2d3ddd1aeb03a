// Package config loads the BuildConfig structure (spec.md §3, §6): the CLI's
// options merged with the optional project-root JSON config file and the
// .env precedence chain.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bcentdev/soku/internal/fingerprint"
	"github.com/bcentdev/soku/internal/transform"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// BuildConfig is the immutable per-build structure from spec.md §3.
type BuildConfig struct {
	Root    string
	Outdir  string
	Mode    Mode
	Entries map[string]string // name -> path

	Minify        bool
	SourceMaps    bool
	TreeShaking   bool
	CodeSplitting bool
	Strategy      transform.Strategy

	Alias        map[string]string
	External     []string
	VendorChunk  bool
	ManualChunks map[string][]string
	Define       map[string]string
	Target       []string

	Analyze bool

	// ToolVersion and ConfigHash feed the cache key from spec.md §4.4.
	ToolVersion string
}

const CurrentToolVersion = "soku/0.1"

// ConfigHash summarizes every transform-affecting option, per spec.md §4.4:
// "config_hash summarizes transform-affecting options (strategy, target,
// minify, JSX factory, CSS-modules scheme, conditions). Any change in
// configuration invalidates entries en masse without explicit purge."
func (c *BuildConfig) ConfigHash(jsxFactory, jsxFragment, cssModuleScheme string, conditions []string) fingerprint.Hash {
	return fingerprint.CombineStrings(
		fmt.Sprintf("%d", c.Strategy),
		fmt.Sprintf("%v", c.Minify),
		fmt.Sprintf("%v", c.SourceMaps),
		fmt.Sprintf("%v", c.Target),
		jsxFactory, jsxFragment, cssModuleScheme,
		fmt.Sprintf("%v", conditions),
		c.ToolVersion,
	)
}

// fileConfig mirrors the JSON config file shape from spec.md §6.
type fileConfig struct {
	Entry         string              `mapstructure:"entry"`
	Entries       map[string]string   `mapstructure:"entries"`
	Outdir        string              `mapstructure:"outdir"`
	Mode          string              `mapstructure:"mode"`
	Minify        *bool               `mapstructure:"minify"`
	SourceMaps    *bool               `mapstructure:"sourceMaps"`
	TreeShaking   *bool               `mapstructure:"treeShaking"`
	CodeSplitting *bool               `mapstructure:"codeSplitting"`
	Strategy      string              `mapstructure:"strategy"`
	Alias         map[string]string   `mapstructure:"alias"`
	External      []string            `mapstructure:"external"`
	VendorChunk   *bool               `mapstructure:"vendorChunk"`
	ManualChunks  map[string][]string `mapstructure:"manualChunks"`
	Define        map[string]string   `mapstructure:"define"`
	Target        []string            `mapstructure:"target"`
}

// Load reads the optional JSON config file at root via viper (spec.md §6),
// layers CLI-supplied defaults under it, and loads the .env precedence chain.
func Load(root string, defaults BuildConfig) (*BuildConfig, map[string]string, error) {
	cfg := defaults
	cfg.Root = root
	if cfg.Entries == nil {
		cfg.Entries = map[string]string{}
	}
	cfg.ToolVersion = CurrentToolVersion

	v := viper.New()
	v.SetConfigName("soku.config")
	v.SetConfigType("json")
	v.AddConfigPath(root)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
	} else {
		var fc fileConfig
		if err := v.Unmarshal(&fc); err != nil {
			return nil, nil, fmt.Errorf("config: invalid option: %w", err)
		}
		applyFileConfig(&cfg, fc)
	}

	env, err := loadEnvChain(root, cfg.Mode)
	if err != nil {
		return nil, nil, err
	}

	return &cfg, env, nil
}

func applyFileConfig(cfg *BuildConfig, fc fileConfig) {
	if fc.Entry != "" {
		cfg.Entries["main"] = fc.Entry
	}
	for name, path := range fc.Entries {
		cfg.Entries[name] = path
	}
	if fc.Outdir != "" {
		cfg.Outdir = fc.Outdir
	}
	if fc.Mode != "" {
		cfg.Mode = Mode(fc.Mode)
	}
	if fc.Minify != nil {
		cfg.Minify = *fc.Minify
	}
	if fc.SourceMaps != nil {
		cfg.SourceMaps = *fc.SourceMaps
	}
	if fc.TreeShaking != nil {
		cfg.TreeShaking = *fc.TreeShaking
	}
	if fc.CodeSplitting != nil {
		cfg.CodeSplitting = *fc.CodeSplitting
	}
	if fc.Strategy != "" {
		cfg.Strategy = transform.ParseStrategy(fc.Strategy)
	}
	if fc.Alias != nil {
		cfg.Alias = fc.Alias
	}
	if fc.External != nil {
		cfg.External = fc.External
	}
	if fc.VendorChunk != nil {
		cfg.VendorChunk = *fc.VendorChunk
	}
	if fc.ManualChunks != nil {
		cfg.ManualChunks = fc.ManualChunks
	}
	if fc.Define != nil {
		cfg.Define = fc.Define
	}
	if fc.Target != nil {
		cfg.Target = fc.Target
	}
}

// loadEnvChain implements spec.md §6: ".env, .env.<mode>, .env.local are
// loaded in that precedence order (later overrides earlier)", merged with
// the process environment, auto-populating NODE_ENV/MODE/DEV/PROD.
func loadEnvChain(root string, mode Mode) (map[string]string, error) {
	env := map[string]string{}
	files := []string{".env", ".env." + string(mode), ".env.local"}
	for _, name := range files {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", name, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}

	env["NODE_ENV"] = string(mode)
	env["MODE"] = string(mode)
	if mode == ModeDevelopment {
		env["DEV"] = "true"
		env["PROD"] = "false"
	} else {
		env["DEV"] = "false"
		env["PROD"] = "true"
	}
	return env, nil
}

// DefineTable merges an explicit `define` map (spec.md §6) with .env-derived
// process.env.X / import.meta.env.X substitutions, producing the literal
// replacement table transform.Options.Define expects.
func DefineTable(explicit map[string]string, env map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range explicit {
		out[k] = v
	}
	for k, v := range env {
		quoted := quoteJSString(v)
		out["process.env."+k] = quoted
		out["import.meta.env."+k] = quoted
	}
	return out
}

func quoteJSString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}
