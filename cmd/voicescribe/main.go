package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/voicescribe/internal/api"
	"github.com/snarg/voicescribe/internal/config"
	"github.com/snarg/voicescribe/internal/fetch"
	"github.com/snarg/voicescribe/internal/intake"
	"github.com/snarg/voicescribe/internal/mqttclient"
	"github.com/snarg/voicescribe/internal/storage"
	"github.com/snarg/voicescribe/internal/transcode"
	"github.com/snarg/voicescribe/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default: .env if present)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		os.Stdout.WriteString(version + "\n")
		return
	}

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
	log.Info().Str("version", version).Msg("voicescribe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pipeline stages
	fetcher := fetch.NewFetcher(fetch.Options{
		Timeout:  cfg.FetchTimeout,
		MaxBytes: cfg.MaxAudioBytes,
		Log:      log.With().Str("component", "fetch").Logger(),
	})

	transcoder := transcode.New(transcode.Options{
		FFmpegPath: cfg.FFmpegPath,
		ScratchDir: cfg.ScratchDir,
		Log:        log.With().Str("component", "transcode").Logger(),
	})
	if !transcoder.Available() {
		log.Warn().Str("ffmpeg", cfg.FFmpegPath).Msg("ffmpeg not found, every job will fail at transcoding")
	}

	recognizer := transcribe.NewWhisperClient(cfg.WhisperURL, cfg.OpenAIAPIKey, cfg.WhisperModel, cfg.WhisperTimeout)

	pipeOpts := transcribe.PipelineOptions{
		Fetcher:        fetcher,
		Transcoder:     transcoder,
		Recognizer:     recognizer,
		MaxBytes:       cfg.MaxAudioBytes,
		Language:       cfg.WhisperLanguage,
		Prompt:         cfg.WhisperPrompt,
		Temperature:    cfg.WhisperTemperature,
		ArchiveTimeout: cfg.Archive.Timeout,
		Log:            log.With().Str("component", "pipeline").Logger(),
	}

	// Source audio archive (optional)
	archiveType := ""
	store, err := storage.New(cfg.Archive, log.With().Str("component", "archive").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio archive")
	}
	if store != nil {
		archiveType = store.Type()
		pipeOpts.Archiver = storage.NewArchiver(store)
		log.Info().Str("backend", archiveType).Msg("source audio archive enabled")
	}

	pipeline := transcribe.NewPipeline(pipeOpts)

	// MQTT intake (optional)
	var (
		mqttConn  api.ConnChecker
		queueStat api.QueueStatter
	)
	if cfg.MQTT.Enabled() {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Topics:    cfg.MQTT.RequestTopic,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		mqttConn = mqtt

		in := intake.NewMQTT(mqtt, cfg.MQTT.ResultTopic, mqttLog)
		pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
			Runner:    pipeline,
			Workers:   cfg.MQTT.Workers,
			QueueSize: cfg.MQTT.QueueSize,
			Publish:   in.PublishResult,
			Log:       log.With().Str("component", "workers").Logger(),
		})
		in.SetQueue(pool)
		queueStat = pool
		pool.Start()
		defer pool.Stop()
		mqtt.SetMessageHandler(in.HandleMessage)

		log.Info().
			Str("request_topic", cfg.MQTT.RequestTopic).
			Str("result_topic", cfg.MQTT.ResultTopic).
			Int("workers", pool.Workers()).
			Msg("mqtt intake enabled")
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Runner:    pipeline,
		FFmpeg:    transcoder,
		MQTT:      mqttConn,
		Queue:     queueStat,
		Archive:   archiveType,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
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

	log.Info().Msg("voicescribe stopped")
}
