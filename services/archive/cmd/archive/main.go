package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"imagevault/internal/ratelimit"
	"imagevault/internal/servicetoken"
	"imagevault/internal/util"
	"imagevault/services/archive/internal/app"
	"imagevault/services/archive/internal/config"
	"imagevault/services/archive/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	verifier, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:  cfg.InternalJWTPublicKeyPath,
		KeyID:          cfg.InternalJWTKeyID,
		Audience:       servicetoken.ArchiveAudience,
		AllowedIssuers: cfg.InternalJWTAllowedIssuers,
		Leeway:         jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init service token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		BlobBackend:    cfg.BlobBackend,
		DataDir:        cfg.DataDir,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	var limiter server.UploadLimiter
	if cfg.UploadRateLimitPerMinute > 0 {
		rl, err := ratelimit.NewFixedWindowLimiter(ratelimit.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "imagevault:ratelimit:upload",
			Limit:    cfg.UploadRateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			log.Fatalf("failed to init upload rate limiter: %v", err)
		}
		defer rl.Close()
		limiter = rl
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Verifier:       verifier,
		UploadLimiter:  limiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("archive server listening", "addr", addr, "blob_backend", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
