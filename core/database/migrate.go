package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/walletbot/core/logger"
)

const migrateComponent = "db.migrate"

// RunMigrations applies all up migrations from cfg.MigrationsDir.
func RunMigrations(cfg Config) error {
	return Migrate(context.Background(), cfg, nil)
}

// Migrate applies all up migrations. The source is cfg.MigrationsDir when
// it exists on disk and fallback otherwise.
func Migrate(ctx context.Context, cfg Config, fallback fs.FS) error {
	if err := cfg.Normalize(); err != nil {
		return err
	}
	src, origin, err := migrationSource(cfg.MigrationsDir, fallback)
	if err != nil {
		logger.Error(ctx, migrateComponent, "db.migrate.resolve", slog.String("err", err.Error()))
		return err
	}
	if err := WaitForPostgres(ctx, cfg.DSN(), 30*time.Second); err != nil {
		logger.Error(ctx, migrateComponent, "db.migrate", slog.String("status", "fail"), slog.String("err", err.Error()))
		return fmt.Errorf("database not ready: %w", err)
	}

	files := listMigrationFiles(src)
	preview, truncated := logger.SummarizeStrings(names(files), 6)
	logger.Debug(ctx, migrateComponent, "db.migrate.resolve",
		slog.String("source", origin),
		slog.Int("count", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	driver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", origin, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, cfg.URL())
	if err != nil {
		logger.Error(ctx, migrateComponent, "db.migrate.init", slog.String("err", logger.RedactToken(err.Error())))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, migrateComponent, "db.migrate.close", slog.String("err", errors.Join(srcErr, dbErr).Error()))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, migrateComponent, "db.migrate.apply",
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}
	to, _, _ := m.Version()

	applied := between(files, uint64(from), uint64(to))
	appliedPreview, _ := logger.SummarizeStrings(names(applied), 6)
	logger.Info(ctx, migrateComponent, "db.migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("count", len(applied)),
		slog.String("files_preview", appliedPreview),
		slog.Duration("duration", took),
	)
	return nil
}

// migrationSource picks the migrations filesystem and describes it for logs.
func migrationSource(dir string, fallback fs.FS) (fs.FS, string, error) {
	path, err := resolveDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		return os.DirFS(path), path, nil
	}
	if fallback != nil {
		return fallback, "embedded", nil
	}
	return nil, "", fmt.Errorf("migrations dir %s not found", path)
}

func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, dir), nil
}

type migrationFile struct {
	name    string
	version uint64
}

// listMigrationFiles returns the *.up.sql files of fsys ordered by version.
func listMigrationFiles(fsys fs.FS) []migrationFile {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		files = append(files, migrationFile{name: e.Name(), version: parseVersion(e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// between returns the files with from < version <= to.
func between(files []migrationFile, from, to uint64) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func names(files []migrationFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out
}
