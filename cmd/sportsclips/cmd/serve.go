package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shlawgathon/sportsclips/internal/commentary"
	"github.com/shlawgathon/sportsclips/internal/config"
	"github.com/shlawgathon/sportsclips/internal/downloader"
	"github.com/shlawgathon/sportsclips/internal/ffmpeg"
	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/highlight"
	internalhttp "github.com/shlawgathon/sportsclips/internal/http"
	"github.com/shlawgathon/sportsclips/internal/http/handlers"
	"github.com/shlawgathon/sportsclips/internal/ingest"
	"github.com/shlawgathon/sportsclips/internal/media"
	"github.com/shlawgathon/sportsclips/internal/observability"
	"github.com/shlawgathon/sportsclips/internal/pipeline"
	"github.com/shlawgathon/sportsclips/internal/scheduler"
	"github.com/shlawgathon/sportsclips/internal/service/logs"
	"github.com/shlawgathon/sportsclips/internal/service/progress"
	"github.com/shlawgathon/sportsclips/internal/util"
	"github.com/shlawgathon/sportsclips/internal/version"
	"github.com/shlawgathon/sportsclips/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sportsclips gateway",
	Long: `Start the sportsclips WebSocket/HTTP gateway.

The gateway provides:
- One WebSocket connection per source URL, streaming highlight snippets and,
  optionally, a synthesized live commentary track
- A health check endpoint and OpenAPI documentation at /docs
- Debugging SSE surfaces for logs and per-run progress`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "host to bind to")
	serveCmd.Flags().Int("port", 8080, "port to listen on")
	serveCmd.Flags().Bool("commentary", false, "enable the live commentary consumer alongside highlight detection")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("commentary.enabled", serveCmd.Flags().Lookup("commentary"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logsService := logs.New()
	logger = slog.New(logsService.WrapHandler(logger.Handler()))
	slog.SetDefault(logger)

	ffmpegPath, err := resolveBinary(cfg.Ingest.FFmpegPath, cfg.FFmpeg.BinaryPath, "ffmpeg", "SPORTSCLIPS_FFMPEG_PATH")
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	ffprobePath, err := resolveBinary(cfg.FFmpeg.ProbePath, "", "ffprobe", "SPORTSCLIPS_FFPROBE_PATH")
	if err != nil {
		return fmt.Errorf("locating ffprobe: %w", err)
	}
	ytDlpPath, err := resolveBinary(cfg.Ingest.DownloaderPath, "", "yt-dlp", "SPORTSCLIPS_DOWNLOADER_PATH")
	if err != nil {
		return fmt.Errorf("locating yt-dlp: %w", err)
	}

	sweeper, err := scheduler.NewSweeper(scheduler.SweeperConfig{BaseDir: os.TempDir()}, logger)
	if err != nil {
		return fmt.Errorf("initializing scratch sweeper: %w", err)
	}
	if removed, sweepErr := sweeper.SweepNow(); sweepErr != nil {
		logger.Warn("orphaned scratch sweep on startup failed", "err", sweepErr)
	} else if removed > 0 {
		logger.Info("cleaned orphaned scratch directories on startup", "removed", removed)
	}
	sweeper.Start()
	defer sweeper.Stop(context.Background())

	apiKey := os.Getenv(cfg.LLM.APIKeyEnvVar)
	if apiKey == "" {
		return fmt.Errorf("environment variable %s is not set", cfg.LLM.APIKeyEnvVar)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmClient, err := genai.New(ctx, apiKey, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("initializing generative-AI client: %w", err)
	}

	toolkit := media.New(ffmpegPath, ffprobePath)
	toolkit.HWAccelType = cfg.FFmpeg.HWAccelType
	toolkit.HWAccelDevice = cfg.FFmpeg.HWAccelDevice
	if cfg.FFmpeg.HWAccelType == "auto" {
		if accel, detectErr := detectHWAccel(ctx, ffmpegPath, logger); detectErr != nil {
			logger.Warn("hardware acceleration auto-detection failed, falling back to software", "err", detectErr)
			toolkit.HWAccelType = ""
		} else if accel != nil {
			logger.Info("auto-detected hardware acceleration", "type", accel.Type, "name", accel.Name)
			toolkit.HWAccelType = string(accel.Type)
		} else {
			logger.Info("no hardware acceleration detected, using software encoding")
			toolkit.HWAccelType = ""
		}
	}
	if err := toolkit.SetExtraOutputArgs(cfg.FFmpeg.ExtraOutputArgs); err != nil {
		return fmt.Errorf("validating ffmpeg.extra_output_args: %w", err)
	}

	dl := downloader.New(ytDlpPath, logger)
	ingestor := ingest.New(dl, ffmpegPath, logger)

	progressService := progress.NewService(logger)
	progressService.Start()
	defer progressService.Stop()

	deps := pipeline.Deps{
		Ingestor: ingestor,
		Toolkit:  toolkit,
		LLM:      llmClient,
		Logger:   logger,
	}
	defaults := ws.Defaults{
		Ingest: ingest.Config{
			ChunkDuration: cfg.Ingest.ChunkDuration,
			FormatPref:    cfg.Ingest.FormatPref,
			ExtraFlags:    cfg.Ingest.ExtraFlags,
			CookiesFile:   cfg.Ingest.CookiesFile,
		},
		Window: highlight.Config{
			ChunkDuration: float64(cfg.Ingest.ChunkDuration),
			WindowSize:    cfg.Window.Size,
			Step:          cfg.Window.Step,
		},
		Commentary: commentary.Config{
			FPS:        cfg.Commentary.FPS,
			Model:      cfg.LLM.LiveModel,
			SampleRate: cfg.Commentary.SampleRate,
		},
		EnableCommentary: viper.GetBool("commentary.enabled"),
		Debug:            cfg.LLM.Debug,
		StageRetries:     cfg.Window.StageRetries,
	}

	gateway := ws.New(deps, defaults, logger).WithProgress(progressService)

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	server.Router().Handle("/ws", gateway)

	docsHandler := handlers.NewDocsHandler("sportsclips API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	healthHandler := handlers.NewHealthHandler(version.Version, gateway)
	healthHandler.Register(server.API())

	logsHandler := handlers.NewLogsHandler(logsService)
	logsHandler.Register(server.API())
	logsHandler.RegisterSSE(server.Router())

	progressHandler := handlers.NewProgressHandler(progressService)
	progressHandler.Register(server.API())
	progressHandler.RegisterSSE(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting sportsclips gateway",
		"host", serverConfig.Host,
		"port", serverConfig.Port,
		"version", version.Version,
		"commentary_enabled", defaults.EnableCommentary,
	)

	return server.ListenAndServe(ctx)
}

// resolveBinary prefers an explicit config path, falls back to a legacy
// override field, then auto-detects via util.FindBinary.
func resolveBinary(configPath, legacyPath, name, envVar string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if legacyPath != "" {
		return legacyPath, nil
	}
	return util.FindBinary(name, envVar)
}

// detectHWAccel probes ffmpegPath for available hardware accelerators and
// returns ffmpeg's priority pick (NVENC, QSV, VideoToolbox, VAAPI, ...), or
// nil if none are available.
func detectHWAccel(ctx context.Context, ffmpegPath string, logger *slog.Logger) (*ffmpeg.HWAccelInfo, error) {
	accels, err := ffmpeg.NewHWAccelDetector(ffmpegPath).Detect(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("hardware acceleration probe complete", "candidates", len(accels))
	return ffmpeg.GetRecommendedHWAccel(accels), nil
}
