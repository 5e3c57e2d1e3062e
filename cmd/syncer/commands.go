package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"photo_syncer/internal/api"
	"photo_syncer/internal/config"
	"photo_syncer/internal/export"
	"photo_syncer/internal/metrics"
	"photo_syncer/internal/scheduler"
	"photo_syncer/internal/storage/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sync API and run the optional periodic sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(true, logOutput(cmd, false))
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext(cmd.Context(), a.logger)
		defer cancel()

		server := &http.Server{
			Addr: a.cfg.HTTP.Addr,
			Handler: api.NewRouter(api.Deps{
				Syncer:         a.sync,
				Photos:         a.photos,
				DB:             a.db,
				DefaultBaseURL: a.cfg.Flickr.BaseURL,
				Metrics:        metrics.Handler(a.registry),
				Logger:         a.logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if a.cfg.Sync.Interval > 0 {
			sched := scheduler.NewScheduler(a.sync, a.cfg.Flickr.BaseURL, a.cfg.Sync.Interval, a.cfg.Sync.RunTimeout, a.logger)
			go func() {
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("scheduler error", "error", err)
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("starting photo syncer",
				"addr", server.Addr,
				"source", a.source.Name(),
				"interval", a.cfg.Sync.Interval,
			)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [base-url]",
	Short: "Run one sync and print the result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true, logOutput(cmd, true))
		if err != nil {
			return err
		}
		defer a.close()

		baseURL := a.cfg.Flickr.BaseURL
		if len(args) > 0 {
			baseURL = args[0]
		}

		ctx, cancel := signalContext(cmd.Context(), a.logger)
		defer cancel()
		if a.cfg.Sync.RunTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.RunTimeout)
			defer cancel()
		}

		result := a.sync.SyncPhotos(ctx, baseURL)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}

		if !result.Success {
			return fmt.Errorf("sync failed: %s", result.Error)
		}
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all stored photos to a CSV file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(false, logOutput(cmd, exportOut == "-"))
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			out = f
		}

		n, err := export.WriteCSV(cmd.Context(), a.photos, out)
		if err != nil {
			return err
		}

		a.logger.Info("exported photos", "count", n, "out", exportOut)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := setupLogger(cfg.LogLevel, logOutput(cmd, false))

		if err := postgres.RunMigrations(cfg.Database.URL()); err != nil {
			return err
		}

		logger.Info("database migrations applied")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "photos.csv", `output file, "-" for stdout`)
}
