package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/softglow/ambientd/internal/ffmpeg"
	ambienthttp "github.com/softglow/ambientd/internal/http"
	"github.com/softglow/ambientd/internal/http/handlers"
	"github.com/softglow/ambientd/internal/ingest"
	"github.com/softglow/ambientd/internal/jobs"
	"github.com/softglow/ambientd/internal/metrics"
	"github.com/softglow/ambientd/internal/observability"
	"github.com/softglow/ambientd/internal/startup"
	"github.com/softglow/ambientd/internal/storage"
	"github.com/softglow/ambientd/internal/transcode"
	"github.com/softglow/ambientd/internal/version"
)

// serveCmd runs the HTTP server and the transcode pipeline.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ambientd server",
	Long:  "Starts the HTTP API, media cache, watch folder, and transcode pipeline.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	logger.Info("starting ambientd",
		slog.String("version", version.Version),
		slog.String("address", cfg.Server.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Anything left in staging is an orphan from a previous run.
	if _, err := startup.CleanStaging(logger, cfg.Storage.StagingPath(), 0); err != nil {
		return fmt.Errorf("cleaning staging directory: %w", err)
	}

	cache, err := storage.NewCache(cfg.Storage.CachePath(), cfg.Storage.StagingPath(), logger)
	if err != nil {
		return fmt.Errorf("initializing media cache: %w", err)
	}

	registry := jobs.NewRegistry()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if info, err := detector.DetectFFmpeg(ctx); err != nil {
		logger.Warn("ffmpeg not available, transcoding will fail until it appears",
			slog.String("error", err.Error()))
	} else {
		logger.Info("detected ffmpeg",
			slog.String("path", info.Path),
			slog.String("version", info.Version),
			slog.Int("encoders", len(info.Encoders)))
	}

	// SIGHUP re-detects ffmpeg on the next use, picking up binaries
	// installed or upgraded while the server is running.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			detector.Invalidate()
			logger.Info("ffmpeg detection cache invalidated")
		}
	}()

	prober := ffmpeg.NewProber(detector, observability.WithComponent(logger, "prober"))
	runner := transcode.NewFFmpegRunner(detector, observability.WithComponent(logger, "runner"))
	runner.SetMonitorInterval(cfg.FFmpeg.MonitorInterval)
	cascade := transcode.NewCascade(runner, cache, registry, m,
		observability.WithComponent(logger, "cascade"),
		cfg.Transcode.Height, cfg.Transcode.AttemptTimeout, cfg.Transcode.RetryDelay)

	configs := transcode.FilterAvailable(ctx, detector, transcode.DefaultCascade())
	names := make([]string, 0, len(configs))
	for _, c := range configs {
		names = append(names, c.Name)
	}
	logger.Info("encoder cascade", slog.String("order", strings.Join(names, " > ")))

	service := ingest.NewService(ctx, cache, registry, prober, cascade, m,
		observability.WithComponent(logger, "ingest"), configs)

	if cfg.Watch.Enabled {
		watcher := ingest.NewWatcher(cfg.Watch.Dir, service,
			observability.WithComponent(logger, "watcher"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("watch folder stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if cfg.Janitor.Enabled {
		janitor := cron.New(cron.WithSeconds())
		_, err := janitor.AddFunc(cfg.Janitor.Cron, func() {
			if _, err := startup.CleanStaging(logger, cfg.Storage.StagingPath(), cfg.Janitor.MaxAge); err != nil {
				logger.Warn("janitor run failed", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling janitor: %w", err)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	server := ambienthttp.NewServer(cfg.Server, logger, version.Version)

	mediaHandler := handlers.NewMediaHandler(service, registry,
		observability.WithComponent(logger, "http"))
	mediaHandler.Register(server.API())

	healthHandler := handlers.NewHealthHandler(version.Version, registry, func(ctx context.Context) bool {
		_, err := detector.DetectFFmpeg(ctx)
		return err == nil
	})
	healthHandler.Register(server.API())

	handlers.NewFilesHandler(cache).RegisterFileServer(server.Router())
	server.MountMetrics(promRegistry)

	serveErr := server.ListenAndServe(ctx)

	// Shutdown: cascades are cancelled through ctx; wait for them, then
	// drain the removal set. Originals go, derivatives stay.
	service.Wait()
	removed := cache.RemoveOriginals()
	logger.Info("shutdown complete", slog.Int("originals_removed", removed))

	return serveErr
}
