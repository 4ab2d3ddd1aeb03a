package cli

import (
	"github.com/bcentdev/soku/internal/config"
	"github.com/bcentdev/soku/internal/transform"
	"github.com/spf13/cobra"
)

// buildFlags holds the options common to `build` and `watch` (spec.md §6's
// key-options column for both commands).
type buildFlags struct {
	root          string
	outdir        string
	mode          string
	noMinify      bool
	noTreeShaking bool
	sourceMaps    bool
	strategy      string
	codeSplitting bool
	analyze       bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", ".", "project root directory")
	cmd.Flags().StringVar(&f.outdir, "outdir", "dist", "output directory")
	cmd.Flags().StringVar(&f.mode, "mode", "production", "build mode: development or production")
	cmd.Flags().BoolVar(&f.noMinify, "no-minify", false, "disable minification")
	cmd.Flags().BoolVar(&f.noTreeShaking, "no-tree-shaking", false, "disable tree shaking")
	cmd.Flags().BoolVar(&f.sourceMaps, "source-maps", false, "emit source maps")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "transform strategy: fast, standard, or enhanced")
	cmd.Flags().BoolVar(&f.codeSplitting, "code-splitting", false, "enable dynamic-import code splitting")
	cmd.Flags().BoolVar(&f.analyze, "analyze", false, "emit manifest.json with a per-chunk size breakdown")
}

// loadConfig merges buildFlags defaults under the project's optional JSON
// config file and .env chain, per spec.md §6.
func (f *buildFlags) loadConfig() (*config.BuildConfig, map[string]string, error) {
	mode := config.ModeProduction
	if f.mode == "development" {
		mode = config.ModeDevelopment
	}
	defaults := config.BuildConfig{
		Mode:          mode,
		Outdir:        f.outdir,
		Minify:        !f.noMinify,
		TreeShaking:   !f.noTreeShaking,
		SourceMaps:    f.sourceMaps,
		CodeSplitting: f.codeSplitting,
		Strategy:      transform.ParseStrategy(f.strategy),
		Analyze:       f.analyze,
	}
	return config.Load(f.root, defaults)
}
