package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/RamonAndres1967/tutor-backend/internal/config"
	"github.com/RamonAndres1967/tutor-backend/internal/handler"
	"github.com/RamonAndres1967/tutor-backend/internal/model/lesson"
	"github.com/RamonAndres1967/tutor-backend/internal/service/ai"
	"github.com/RamonAndres1967/tutor-backend/internal/service/phase"
	"github.com/RamonAndres1967/tutor-backend/internal/service/quota"
	sessionstore "github.com/RamonAndres1967/tutor-backend/internal/service/session"
	"github.com/RamonAndres1967/tutor-backend/internal/service/speech"
	"github.com/RamonAndres1967/tutor-backend/internal/service/tutor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// A malformed or absent lesson script must not serve traffic.
	script, err := lesson.Load(cfg.Script.Path)
	if err != nil {
		logger.Fatal("lesson script load failed", zap.String("path", cfg.Script.Path), zap.Error(err))
	}
	logger.Info("lesson script loaded",
		zap.String("path", cfg.Script.Path),
		zap.Int("topics", len(script.Topics)))

	ledger, cleanup, err := newLedger(ctx, logger, cfg.Quota)
	if err != nil {
		logger.Fatal("quota ledger init failed", zap.Error(err))
	}
	defer cleanup()

	engine := phase.NewEngine(script, rand.New(rand.NewSource(time.Now().UnixNano())))
	sessions := sessionstore.NewMemoryStore()

	var responder tutor.Responder
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, logger, cfg.AI)
		if err != nil {
			logger.Warn("AI service init failed, chat endpoint will refuse turns", zap.Error(err))
		} else {
			responder = aiService
			logger.Info("AI service initialized")
		}
	} else {
		logger.Warn("model credentials not configured, chat endpoint will refuse turns")
	}

	tutorService := tutor.NewService(logger, sessions, ledger, engine, responder, cfg.Quota.LimitSeconds)

	var transcriber speech.Transcriber
	if cfg.STT.Enabled {
		transcriber = speech.NewWhisperTranscriber(logger, cfg.STT)
		logger.Info("transcription service initialized")
	} else {
		logger.Warn("STT credentials not configured, /stt will return empty transcriptions")
	}

	router := handler.NewRouter(logger, tutorService, transcriber)

	startServer(ctx, logger, cfg.Server, router)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newLedger(ctx context.Context, logger *zap.Logger, cfg config.QuotaConfig) (quota.Ledger, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		ledger, err := quota.NewSQLiteLedger(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("quota ledger: sqlite", zap.String("path", cfg.SQLitePath))
		return ledger, func() { _ = ledger.Close() }, nil
	case "redis":
		ledger, err := quota.NewRedisLedger(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("quota ledger: redis", zap.String("addr", cfg.RedisAddr))
		return ledger, func() { _ = ledger.Close() }, nil
	default:
		logger.Info("quota ledger: in-memory")
		return quota.NewMemoryLedger(), func() {}, nil
	}
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("tutor backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
