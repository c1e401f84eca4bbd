package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetpipe/meetpipe/internal/api"
	"github.com/meetpipe/meetpipe/internal/config"
	"github.com/meetpipe/meetpipe/internal/database"
	"github.com/meetpipe/meetpipe/internal/media"
	"github.com/meetpipe/meetpipe/internal/pipeline"
	"github.com/meetpipe/meetpipe/internal/provider"
	"github.com/meetpipe/meetpipe/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres connection string")
	flag.StringVar(&overrides.Provider, "provider", "", "asr provider (tingwu or volc)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("provider", cfg.Provider).Msg("meetpipe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	// Collaborators
	transcoder := media.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.WorkDir)
	if err := transcoder.Check(); err != nil {
		log.Warn().Err(err).Msg("ffmpeg not found; transcode stage will fail")
	}

	uploader, err := storage.NewS3Uploader(ctx, storage.Options{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.S3PublicURL,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure object storage")
	}

	adapter := newAdapter(cfg)

	// Pipeline controller
	ctrl := pipeline.NewController(pipeline.Options{
		Store:      db,
		Transcoder: transcoder,
		Uploader:   uploader,
		Adapter:    adapter,
		TaskOpts: provider.TaskOptions{
			SourceLanguage: cfg.SourceLanguage,
			AudioFormat:    cfg.AudioFormat,
			Summarization:  cfg.Summarization,
			AutoChapters:   cfg.AutoChapters,
			SpeakerInfo:    cfg.SpeakerInfo,
		},
		KeyPrefix: cfg.KeyPrefix,
		Log:       log.With().Str("component", "pipeline").Logger(),
	})

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, ctrl, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("meetpipe stopped")
}

// newAdapter builds the configured provider adapter.
func newAdapter(cfg *config.Config) provider.Adapter {
	if cfg.Provider == "volc" {
		return provider.NewVolcClient(provider.VolcConfig{
			BaseURL: cfg.VolcBaseURL,
			AppID:   cfg.VolcAppID,
			Token:   cfg.VolcToken,
			Cluster: cfg.VolcCluster,
			UID:     cfg.VolcUID,
			Timeout: cfg.ProviderTimeout,
		})
	}
	return provider.NewTingwuClient(provider.TingwuConfig{
		Host:            cfg.TingwuHost,
		BasePath:        cfg.TingwuBasePath,
		AppKey:          cfg.TingwuAppKey,
		AccessKeyID:     cfg.TingwuKeyID,
		AccessKeySecret: cfg.TingwuKeySecret,
		Timeout:         cfg.ProviderTimeout,
	})
}
