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

	"github.com/fadedpez/stemverse/internal/api"
	"github.com/fadedpez/stemverse/internal/auth"
	"github.com/fadedpez/stemverse/internal/config"
	"github.com/fadedpez/stemverse/internal/discord"
	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/ratelimit"
	"github.com/fadedpez/stemverse/pkg/db"
	"github.com/fadedpez/stemverse/pkg/repositories/archive"
	buddyRepo "github.com/fadedpez/stemverse/pkg/repositories/buddy"
	profileRepo "github.com/fadedpez/stemverse/pkg/repositories/profile"
	walletRepo "github.com/fadedpez/stemverse/pkg/repositories/wallet"
	"github.com/fadedpez/stemverse/pkg/scheduler"
	buddyService "github.com/fadedpez/stemverse/pkg/services/buddy"
	profileService "github.com/fadedpez/stemverse/pkg/services/profile"
	"github.com/fadedpez/stemverse/pkg/services/rewards"
	"github.com/fadedpez/stemverse/pkg/services/tutor"
	walletService "github.com/fadedpez/stemverse/pkg/services/wallet"
	"github.com/gin-gonic/gin"
)

const rewardRateWindow = time.Minute

var _ scheduler.IndexMaintainer = (*archive.ElasticsearchArchive)(nil)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, !cfg.IsDevelopment())
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.WithError(err).Error("Server exited")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released
// before it returns, including on startup errors.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	profiles := profileService.NewService(profileRepo.NewSQLiteRepository(database))

	walletOpts := []walletService.Option{walletService.WithLogger(logger)}

	if cfg.ArchiveEnabled() {
		esArchive, err := archive.NewElasticsearchArchive(&archive.Config{
			URL:             cfg.ElasticsearchURL,
			Username:        cfg.ElasticsearchUsername,
			Password:        cfg.ElasticsearchPassword,
			IndexPrefix:     cfg.ElasticsearchPrefix,
			RetentionPeriod: cfg.ElasticsearchRetention,
			RotationPeriod:  cfg.ElasticsearchRotation,
			PrunePeriod:     cfg.ElasticsearchPrune,
			ArchivePath:     cfg.ElasticsearchArchive,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create transaction archive: %w", err)
		}
		walletOpts = append(walletOpts, walletService.WithObserver(esArchive))

		archiveConfig := esArchive.Config()
		maintenance := scheduler.NewMaintenanceScheduler(esArchive, archiveConfig.RotationPeriod, archiveConfig.PrunePeriod, logger)
		maintenance.Start(ctx)
		defer maintenance.Stop()

		logger.WithField("url", cfg.ElasticsearchURL).Info("Transaction archive enabled")
	}

	if cfg.AnnouncerEnabled() {
		session, err := discord.NewSession(cfg.DiscordToken)
		if err != nil {
			return fmt.Errorf("failed to create Discord session: %w", err)
		}
		if err := session.Open(); err != nil {
			return fmt.Errorf("failed to open Discord session: %w", err)
		}

		announcer := discord.NewAnnouncer(session, cfg.DiscordChannelID, profiles)
		defer announcer.Close()
		walletOpts = append(walletOpts, walletService.WithObserver(announcer))

		logger.WithField("channel_id", cfg.DiscordChannelID).Info("Discord announcer enabled")
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RewardRateLimit, rewardRateWindow)
	if cfg.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.RewardRateLimit, rewardRateWindow)
	}

	var model tutor.Model
	if cfg.TutorModelEnabled() {
		gemini, err := tutor.NewGeminiModel(ctx, tutor.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.GeminiTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create tutor model: %w", err)
		}
		model = gemini
		logger.WithField("model", cfg.GeminiModel).Info("Hosted tutor model enabled")
	}

	wallet := walletService.NewService(walletRepo.NewSQLiteRepository(database), walletOpts...)
	// Observers still in flight finish before the database closes
	defer wallet.Wait()

	hub := api.NewRoomHub(logger)
	buddy := buddyService.NewService(buddyRepo.NewSQLiteRepository(database),
		buddyService.WithMessageObserver(hub),
		buddyService.WithLogger(logger),
	)

	handler := api.NewHandler(api.Dependencies{
		Wallet:   wallet,
		Rewards:  rewards.NewService(wallet),
		Profiles: profiles,
		Tutor:    tutor.NewService(model, logger),
		Buddy:    buddy,
		Hub:      hub,
		Sessions: auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL),
		Limiter:  limiter,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("STEMverse server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	// Hijacked sockets are not tracked by Shutdown
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	default:
		return nil
	}
}
