package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/gback-app/coach-engine/internal/audio"
	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/config"
	"github.com/gback-app/coach-engine/internal/gdrive"
	"github.com/gback-app/coach-engine/internal/llm"
	"github.com/gback-app/coach-engine/internal/server"
	"github.com/gback-app/coach-engine/internal/session"
	"github.com/gback-app/coach-engine/internal/storage"
	"github.com/gback-app/coach-engine/internal/transcribe"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("coach-engine failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	logger.Info("coach-engine: starting")

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("config warning", "warning", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Sessions left open by a crash can never be ended by their controller.
	if n, err := store.EndActiveSessions(time.Now(), storage.EndShutdown); err != nil {
		logger.Warn("close stale sessions failed", "error", err)
	} else if n > 0 {
		logger.Info("closed stale sessions", "count", n)
	}

	exercises, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	hub := server.NewHub(logger)
	deps := session.Deps{
		Catalog:  exercises,
		Capture:  audio.NewCapture(audio.PortAudioInput{}, audio.CaptureConfig{DeviceRates: cfg.SampleRateCandidates(), FrameSize: cfg.FrameSize}, logger),
		Output:   outputOpener(cfg),
		Notifier: hub,
		Store:    store,
		Logger:   logger,
	}

	if key := cfg.ChatAPIKey(); key != "" {
		provider, model, err := llm.ParseModel(cfg.ChatModel)
		if err != nil {
			return err
		}
		agent, err := llm.NewClient(provider, key, model)
		if err != nil {
			return fmt.Errorf("chat client: %w", err)
		}
		deps.Agent = agent
	}

	if cfg.GeminiAPIKey != "" {
		live, err := llm.NewGeminiLive(cfg.GeminiAPIKey, logger)
		if err != nil {
			return fmt.Errorf("live client: %w", err)
		}
		deps.Live = live
	}

	if cfg.DeepgramAPIKey != "" {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
		deps.Transcriber = transcribe.NewDeepgram(cfg.DeepgramAPIKey, transcribe.DeepgramOptions{
			Model:    cfg.DeepgramModel,
			Language: cfg.DeepgramLanguage,
		}, logger)
	}

	if cfg.RecordDir != "" {
		deps.Recorder = audio.NewRecorder(cfg.RecordDir)
	}

	coach, err := session.NewController(sessionConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("session controller: %w", err)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("static assets init: %w", err)
	}

	handler, err := server.Handler(assets, hub, store, coach, server.Options{
		Warnings: func() []string { return warnings },
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var syncer *gdrive.Syncer
	if cfg.GDriveFolderID != "" {
		syncer, err = gdrive.NewSyncer(ctx, cfg.GoogleCredsFile, cfg.GDriveFolderID)
		if err != nil {
			logger.Warn("gdrive sync disabled", "error", err)
			syncer = nil
		} else {
			go runBackups(ctx, syncer, store, cfg.ParsedBackupInterval(), logger)
		}
	}

	logger.Info("coach-engine: web UI ready", "addr", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("coach-engine: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := coach.StopVoice(); err != nil && !errors.Is(err, session.ErrNoVoiceSession) {
		logger.Warn("stop voice session failed", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if _, err := store.EndActiveSessions(time.Now(), storage.EndShutdown); err != nil {
		logger.Warn("end active sessions failed", "error", err)
	}
	if syncer != nil {
		if err := syncer.Sync(shutdownCtx, store, today()); err != nil {
			logger.Warn("final gdrive sync failed", "error", err)
		}
	}
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// outputOpener opens the speaker per voice session. Headless mode plays
// against the wall clock instead.
func outputOpener(cfg config.Config) session.OutputOpener {
	return func() (audio.Output, error) {
		if cfg.Headless {
			return audio.NewWallClockOutput(time.Now), nil
		}
		out, err := audio.OpenPortAudioOutput(cfg.PlaybackSampleRate, 0)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		Language:          cfg.Language,
		LiveModel:         cfg.LiveModel,
		Voice:             cfg.Voice,
		ConnectTimeout:    cfg.ParsedConnectTimeout(),
		HighPainThreshold: cfg.HighPainThreshold,
		Greeting:          cfg.Messages.Greeting,
		HighPainAlert:     cfg.Messages.HighPainAlert,
		MicError:          cfg.Messages.MicError,
		DeviceError:       cfg.Messages.DeviceError,
		ConnectionLost:    cfg.Messages.ConnectionLost,
		ConnectionError:   cfg.Messages.ConnectionError,
		ToolFallback:      cfg.Messages.ToolFallback,
	}
}

func runBackups(ctx context.Context, syncer *gdrive.Syncer, src gdrive.AuditSource, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syncer.Sync(ctx, src, today()); err != nil {
				logger.Warn("gdrive sync error", "error", err)
			}
		}
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
