package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvChainPrecedenceLaterOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write(".env", "A=base\nB=base\n")
	write(".env.production", "B=prod\nC=prod\n")
	write(".env.local", "C=local\n")

	env, err := loadEnvChain(dir, ModeProduction)
	if err != nil {
		t.Fatalf("loadEnvChain: %v", err)
	}
	if env["A"] != "base" {
		t.Errorf("A = %q, want base (only .env sets it)", env["A"])
	}
	if env["B"] != "prod" {
		t.Errorf("B = %q, want prod (.env.production overrides .env)", env["B"])
	}
	if env["C"] != "local" {
		t.Errorf("C = %q, want local (.env.local overrides .env.production)", env["C"])
	}
	if env["MODE"] != "production" || env["NODE_ENV"] != "production" {
		t.Errorf("expected MODE/NODE_ENV auto-populated to production, got %+v", env)
	}
	if env["DEV"] != "false" || env["PROD"] != "true" {
		t.Errorf("expected DEV=false PROD=true for production mode, got DEV=%q PROD=%q", env["DEV"], env["PROD"])
	}
}

func TestLoadEnvChainMissingFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	env, err := loadEnvChain(dir, ModeDevelopment)
	if err != nil {
		t.Fatalf("loadEnvChain with no .env files: %v", err)
	}
	if env["DEV"] != "true" || env["PROD"] != "false" {
		t.Errorf("expected development defaults, got %+v", env)
	}
}

func TestDefineTableMergesExplicitAndEnvQuoted(t *testing.T) {
	explicit := map[string]string{"__VERSION__": `"1.2.3"`}
	env := map[string]string{"API_URL": `https://example.com/"x"`}

	out := DefineTable(explicit, env)

	if out["__VERSION__"] != `"1.2.3"` {
		t.Errorf("explicit define not preserved: %+v", out)
	}
	want := `"https://example.com/\"x\""`
	if out["process.env.API_URL"] != want {
		t.Errorf("process.env.API_URL = %q, want %q", out["process.env.API_URL"], want)
	}
	if out["import.meta.env.API_URL"] != want {
		t.Errorf("import.meta.env.API_URL = %q, want %q", out["import.meta.env.API_URL"], want)
	}
}

func TestConfigHashStableAcrossIrrelevantChanges(t *testing.T) {
	c1 := &BuildConfig{Strategy: 2, Minify: true, ToolVersion: CurrentToolVersion}
	c2 := &BuildConfig{Strategy: 2, Minify: true, ToolVersion: CurrentToolVersion, Entries: map[string]string{"main": "/a/b.js"}}

	h1 := c1.ConfigHash("createElement", "Fragment", "hash5", []string{"browser", "import"})
	h2 := c2.ConfigHash("createElement", "Fragment", "hash5", []string{"browser", "import"})
	if h1 != h2 {
		t.Fatalf("ConfigHash changed when only Entries (not a transform-affecting option) changed")
	}

	h3 := c1.ConfigHash("createElement", "Fragment", "hash5", []string{"browser", "require"})
	if h1 == h3 {
		t.Fatalf("ConfigHash did not change when conditions changed")
	}
}

func TestApplyFileConfigOverridesDefaultsOnlyWhenSet(t *testing.T) {
	cfg := BuildConfig{Outdir: "dist", Minify: true, Entries: map[string]string{}}
	applyFileConfig(&cfg, fileConfig{Outdir: "build"})

	if cfg.Outdir != "build" {
		t.Errorf("Outdir = %q, want build", cfg.Outdir)
	}
	if !cfg.Minify {
		t.Errorf("expected Minify to remain true when file config omits it")
	}
}
