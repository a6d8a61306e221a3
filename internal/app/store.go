package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Daison12121/tilda-backend/internal/config"
	"github.com/Daison12121/tilda-backend/internal/database"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

// backendStore は各バックエンドが実装するストアの全機能。
type backendStore interface {
	repository.RecordStore
	repository.TokenPruner
	repository.HealthChecker
}

// openStore はcfg.StoreBackendに応じたレコードストアを開く。
// 返されたclose関数は呼び出し側が必ず呼ぶ。
func openStore(ctx context.Context, cfg *config.Config) (backendStore, func() error, error) {
	nop := func() error { return nil }

	switch cfg.StoreBackend {
	case config.BackendREST:
		store := repository.NewRESTRecordStore(&http.Client{Timeout: cfg.StoreTimeout}, cfg.SupabaseURL, cfg.SupabaseKey)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		// 起動は継続し、以降のリクエストでStoreReadFailedとして報告する
		if err := store.PingContext(pingCtx); err != nil {
			slog.Warn("record store is not reachable yet", slog.String("error", err.Error()))
		} else {
			slog.Info("record store connection established", slog.String("backend", cfg.StoreBackend))
		}
		return store, nop, nil

	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, nil, err
		}

		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return repository.NewPostgresRecordStore(db), db.Close, nil

	case config.BackendMemory:
		slog.Warn("using in-memory record store; all users and tokens are lost on restart")
		store := repository.NewMemoryRecordStore()
		if cfg.MemorySeedUsers != "" {
			if err := seedMemoryStore(ctx, store, cfg.MemorySeedUsers); err != nil {
				return nil, nil, err
			}
		} else {
			slog.Warn("MEMORY_SEED_USERS is not set; the users table is empty and every login fails")
		}
		return store, nop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// seedMemoryStore はpathのユーザーJSONをメモリストアに投入する。
func seedMemoryStore(ctx context.Context, store *repository.MemoryRecordStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open MEMORY_SEED_USERS: %w", err)
	}
	defer f.Close()

	n, err := repository.SeedUsers(ctx, store, f)
	if err != nil {
		return fmt.Errorf("failed to seed memory store from %s: %w", path, err)
	}

	slog.Info("memory store seeded", slog.String("path", path), slog.Int("users", n))
	return nil
}
