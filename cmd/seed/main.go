package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/fixtures"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/config"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/observability"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
	firestoreRepo "github.com/Ngumi22/zami-web-sub001/internal/repositories/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories/memory"
)

func main() {
	path := flag.String("file", "cmd/seed/fixtures.yaml", "fixture document to load")
	dryRun := flag.Bool("dry-run", false, "validate the document without writing")
	flag.Parse()

	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("seed")

	if err := run(context.Background(), logger, *path, *dryRun); err != nil {
		logger.Error("seed failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()

	file, err := fixtures.Decode(f)
	if err != nil {
		return err
	}
	if dryRun {
		logger.Info("fixtures valid", zap.Int("products", len(file.Products)), zap.Int("coupons", len(file.Coupons)))
		return nil
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	res, err := fixtures.Apply(ctx, reg, file, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("fixtures applied",
		zap.String("store", string(cfg.Store.Driver)),
		zap.Int("products", res.Products),
		zap.Int("coupons", res.Coupons),
		zap.Int("blocked", res.Blocked),
	)
	return nil
}

func openRegistry(cfg config.Config) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		return memory.NewStore(), nil
	case config.StoreDriverFirestore:
		reg, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore))
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
