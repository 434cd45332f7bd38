package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/api/http"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/auth"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/config"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/service"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/trigger"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/sl"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect to redis", sl.Err(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	presenceRepo := repository.NewRedisPresenceRepository(redisClient, cfg.Presence.OnlineTTL, cfg.Presence.OfflineTTL)
	historyRepo := repository.NewRedisHistoryRepository(redisClient)
	wraithRepo := repository.NewRedisWraithStateRepository(redisClient)

	registry := realtime.NewRegistry(log)
	scheduler := service.NewScheduler(log)
	evaluator := trigger.NewEvaluator(cfg.Wraith.SilenceThreshold)

	wraithService := service.NewWraithService(wraithRepo, log)
	presenceService := service.NewPresenceService(registry, presenceRepo, log)
	chatService := service.NewChatService(
		registry,
		historyRepo,
		wraithService,
		evaluator,
		scheduler,
		log,
		cfg.Wraith.MinReplyDelay,
		cfg.Wraith.MaxReplyDelay,
	)

	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	socketController := httpapi.NewSocketController(tokens, presenceService, chatService, log)
	presenceController := httpapi.NewPresenceController(presenceService)
	wraithController := httpapi.NewWraithController(wraithService)

	router := httpapi.SetupRouter(socketController, presenceController, wraithController)

	sweeper := cron.New()
	_, err = sweeper.AddFunc("@every "+cfg.Wraith.SilenceSweep.String(), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		chatService.SilenceSweep(sweepCtx)
	})
	if err != nil {
		log.Error("failed to schedule silence sweep", sl.Err(err))
		os.Exit(1)
	}

	// Listing online identities prunes lapsed records from the online set.
	_, err = sweeper.AddFunc("@every 5m", func() {
		pruneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := presenceService.ListOnline(pruneCtx); err != nil {
			log.Warn("presence reconciliation failed", sl.Err(err))
		}
	})
	if err != nil {
		log.Error("failed to schedule presence reconciliation", sl.Err(err))
		os.Exit(1)
	}
	sweeper.Start()

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sweeper.Stop()
	scheduler.Stop()
	registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
