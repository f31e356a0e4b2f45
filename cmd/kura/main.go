// Package main is the kura CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/pkg/utils"
)

var version = "dev"

// configCandidates are looked up in the working directory when --config is not given.
var configCandidates = []string{"kura.yaml", "kura.yml", "kura.toml", "config.yaml"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command. They override
// values from the config file.
type globalFlags struct {
	configPath         string
	vectorStorePath    string
	vectorStoreName    string
	sessionID          string
	filesLocation      string
	gitSettings        string
	confluenceSettings string
	embeddingConfig    string
	logLevel           string
	output             string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "kura",
		Short: "Build vector stores from files, repositories and wiki spaces",
		Long: `kura collects documents from a local directory, a git repository and a
Confluence space, embeds them and writes a searchable vector store.

Running kura without a command performs a single build.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, g)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (YAML, or TOML for .toml files)")
	pf.StringVar(&g.vectorStorePath, "vector-store-path", "", "directory receiving vector stores")
	pf.StringVar(&g.vectorStoreName, "vector-store-name", "", "requested store name")
	pf.StringVar(&g.sessionID, "session-id", "", `session id stamped on every document ("auto" generates one)`)
	pf.StringVar(&g.filesLocation, "files-location", "", "file or directory to collect documents from")
	pf.StringVar(&g.gitSettings, "git-settings", "", "git source settings as JSON")
	pf.StringVar(&g.confluenceSettings, "confluence-settings", "", "Confluence source settings as JSON")
	pf.StringVar(&g.embeddingConfig, "embedding-config", "", "embedding settings as JSON, merged over the config file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&g.output, "output", "o", "text", "output format (text or json)")

	root.AddCommand(
		newBuildCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
		newStoresCmd(g),
		newFormatsCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig returns the config selected by the flags, with flag overrides,
// defaults and environment credentials applied.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := readConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := g.apply(cfg); err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	config.ApplyEnv(cfg)
	return cfg, nil
}

// apply copies set flags over cfg.
func (g *globalFlags) apply(cfg *config.Config) error {
	if g.vectorStorePath != "" {
		cfg.VectorStore.Path = g.vectorStorePath
	}
	if g.vectorStoreName != "" {
		cfg.VectorStore.Name = g.vectorStoreName
	}
	if g.sessionID != "" {
		cfg.SessionID = g.sessionID
	}
	if g.filesLocation != "" {
		cfg.Sources.FilesLocation = g.filesLocation
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.gitSettings != "" {
		git, err := config.ParseGitSettings(g.gitSettings)
		if err != nil {
			return err
		}
		cfg.Sources.Git = git
	}
	if g.confluenceSettings != "" {
		wiki, err := config.ParseConfluenceSettings(g.confluenceSettings)
		if err != nil {
			return err
		}
		cfg.Sources.Confluence = wiki
	}
	if g.embeddingConfig != "" {
		emb, err := config.MergeEmbeddingSettings(cfg.Embedding, g.embeddingConfig)
		if err != nil {
			return err
		}
		cfg.Embedding = emb
	}
	return nil
}

// readConfig loads path, or the first config candidate in the working
// directory when path is empty, or the built-in defaults.
func readConfig(path string) (*config.Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if path != "" {
		return config.Load(path)
	}
	if cwd, err := os.Getwd(); err == nil {
		for _, name := range configCandidates {
			candidate := filepath.Join(cwd, name)
			if _, statErr := os.Stat(candidate); statErr == nil {
				return config.Load(candidate)
			}
		}
	}
	return config.Default(), nil
}

// newLogger builds the run logger for cfg.
func newLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	logger, closeFn, err := utils.NewRunLogger(cfg.LogLevel, cfg.LogFilePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, closeFn, nil
}
