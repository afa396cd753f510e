package testutils

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glentner/StreamKit/streamkit/config"
	"github.com/glentner/StreamKit/streamkit/database"
)

// NewSqliteDB opens an initialized file-backed sqlite database under
// dir (usually t.TempDir()).
func NewSqliteDB(ctx context.Context, dir string) (*database.DB, error) {
	cfg := config.Database{
		Backend:  config.SQLite,
		Database: filepath.Join(dir, "streamkit.db"),
	}
	db, err := database.Connect(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewPgDB opens an initialized postgres database from the
// STREAMKIT_TEST_PG_* environment, or reports ok=false when the
// environment is not configured.
func NewPgDB(ctx context.Context, schema string) (db *database.DB, ok bool, err error) {
	host := os.Getenv("STREAMKIT_TEST_PG_HOST")
	if host == "" {
		return nil, false, nil
	}
	cfg := config.Database{
		Backend:  config.Postgres,
		User:     getEnv("STREAMKIT_TEST_PG_USER", "streamkit"),
		Password: getEnv("STREAMKIT_TEST_PG_PASSWORD", "streamkit"),
		Host:     host,
		Database: getEnv("STREAMKIT_TEST_PG_DATABASE", "streamkit_test"),
		Schema:   schema,
	}
	db, err = database.Connect(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, true, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, true, err
	}
	return db, true, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// UniqueName avoids cross-run collisions in shared test databases.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
