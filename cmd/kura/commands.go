package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/cli"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/pipeline"
	"github.com/hyperjump/kura/internal/server"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newBuildCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build one vector store from the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, g)
		},
	}
}

func runBuild(cmd *cobra.Command, g *globalFlags) error {
	format, err := cli.ParseOutputFormat(g.output)
	if err != nil {
		return err
	}
	cfg, logger, closeLog, err := setup(g)
	if err != nil {
		return err
	}
	defer closeLog()

	svc, err := pipeline.NewService(cfg, pipeline.WithServiceLogger(logger))
	if err != nil {
		return err
	}
	defer closeService(svc, logger)

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	res, err := svc.Build(ctx, pipeline.Overrides{})
	if err != nil {
		logger.Error("vector store creation failed", zap.Error(err))
		return err
	}
	return cli.WriteResult(cmd.OutOrStdout(), res, format)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the build API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := setup(g)
			if err != nil {
				return err
			}
			defer closeLog()
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			svc, err := pipeline.NewService(cfg, pipeline.WithServiceLogger(logger))
			if err != nil {
				return err
			}
			defer closeService(svc, logger)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serve(ctx, svc, cfg, logger)
		},
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild a vector store whenever files change",
		Long: `Builds a store, then watches files_location and builds a new store after
every burst of relevant changes. Rebuilds never overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := setup(g)
			if err != nil {
				return err
			}
			defer closeLog()
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			if cfg.Sources.FilesLocation == "" {
				return &config.ConfigurationError{Field: "sources.files_location", Reason: "required for watch mode"}
			}

			svc, err := pipeline.NewService(cfg, pipeline.WithServiceLogger(logger))
			if err != nil {
				return err
			}
			defer closeService(svc, logger)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return watch(ctx, cmd, svc, cfg, logger, withServer)
		},
	}
	cmd.Flags().BoolVar(&withServer, "serve", false, "also serve the HTTP API while watching")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, svc *pipeline.Service, cfg *config.Config, logger *zap.Logger, withServer bool) error {
	rebuild := func(ctx context.Context, changed []string) error {
		res, err := svc.Build(ctx, pipeline.Overrides{})
		if errors.Is(err, pipeline.ErrNoDocuments) {
			logger.Info("no documents to index, waiting for changes", zap.Int("changed", len(changed)))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.SuccessMessage(res))
		return nil
	}

	if err := rebuild(ctx, nil); err != nil {
		return err
	}

	w := watcher.NewWatcher(cfg.Sources.FilesLocation, rebuild,
		watcher.WithLogger(logger.Named("watcher")),
		watcher.WithIgnore(cfg.VectorStore.Path),
		watcher.WithDebounce(cfg.Watch.DebounceDuration()),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithExtensions(svc.Registry().Extensions()),
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	logger.Info("watching for changes", zap.String("root", w.Root()))

	if withServer {
		return serve(ctx, svc, cfg, logger)
	}
	<-ctx.Done()
	logger.Info("Shutting down...")
	return nil
}

// serve runs the HTTP API until ctx is done.
func serve(ctx context.Context, svc *pipeline.Service, cfg *config.Config, logger *zap.Logger) error {
	srv := server.NewServer(svc, svc.Catalog(), &cfg.Server, logger.Named("server"),
		server.WithVersion(version),
		server.WithFormats(svc.Registry().Extensions),
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newStoresCmd(g *globalFlags) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "stores [name]",
		Short: "List built vector stores, or show the newest store for a name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(g.output)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.VectorStore.CatalogEnabled() {
				return errors.New("the store catalog is disabled (vector_store.catalog: false)")
			}
			catalog, err := storage.NewSQLiteCatalog(cfg.VectorStore.CatalogFile())
			if err != nil {
				return err
			}
			defer catalog.Close()

			if len(args) == 1 {
				info, err := catalog.GetStore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return cli.WriteStores(cmd.OutOrStdout(), []*models.StoreInfo{info}, format)
			}
			stores, err := catalog.ListStores(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			return cli.WriteStores(cmd.OutOrStdout(), stores, format)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of stores to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of stores to list (0 lists all)")
	return cmd
}

func newFormatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "Show which file formats can be parsed in this environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(g.output)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			registry := extract.NewRegistry(extract.WithOCRCommand(cfg.Sources.OCRCommand))
			return cli.WriteFormats(cmd.OutOrStdout(), registry.Capabilities(), format)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kura version %s\n", version)
		},
	}
}

// setup loads and validates the config and opens the run logger.
func setup(g *globalFlags) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

func closeService(svc *pipeline.Service, logger *zap.Logger) {
	if err := svc.Close(); err != nil {
		logger.Warn("failed to close service", zap.Error(err))
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
