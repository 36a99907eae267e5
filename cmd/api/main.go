package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/di"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/config"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/observability"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/secrets"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const (
	shutdownTimeout    = 10 * time.Second
	defaultVersion     = "dev"
	buildVersionEnvKey = "ORDERS_BUILD_VERSION"
	secretsFileEnvKey  = "ORDERS_SECRETS_FALLBACK_FILE"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orders api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	resolverOpts := []secrets.Option{
		secrets.WithProject(secretProject(envValues)),
		secrets.WithLogger(logger.Named("secrets")),
	}
	if path := strings.TrimSpace(envValues[secretsFileEnvKey]); path != "" {
		resolverOpts = append(resolverOpts, secrets.WithFallbackFile(path))
	}
	resolver, err := secrets.NewResolver(ctx, resolverOpts...)
	if err != nil {
		return fmt.Errorf("initialise secret resolver: %w", err)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load config: %w", err)
	}

	build := services.BuildInfo{
		Version:     firstNonEmpty(envValues[buildVersionEnvKey], defaultVersion),
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}

	container, err := di.NewContainer(ctx, cfg, di.Options{
		Logger:  baseLogger,
		Build:   build,
		Secrets: resolver,
	})
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	taskCtx, cancelTasks := context.WithCancel(ctx)
	container.Start(taskCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("orders api listening",
			zap.String("addr", srv.Addr),
			zap.String("store", string(cfg.Store.Driver)),
			zap.String("version", build.Version),
			zap.String("environment", build.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	cancelTasks()
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
	logger.Info("orders api stopped")
	return runErr
}

func secretProject(env map[string]string) string {
	return firstNonEmpty(
		env["ORDERS_SECRETS_PROJECT_ID"],
		env["ORDERS_FIRESTORE_PROJECT_ID"],
		env["ORDERS_FIREBASE_PROJECT_ID"],
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
