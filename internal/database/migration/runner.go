package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"jobpulse/internal/pkg/logger"

	"go.uber.org/zap"
)

var (
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
	ErrUnknownVersion   = errors.New("applied migration missing from source")
)

// Runner applies V<n>__name.sql files in version order on PostgreSQL.
// FS takes precedence over Dir when set.
type Runner struct {
	Dir    string
	FS     fs.FS
	Logger *zap.Logger
}

// Result lists the migrations applied by one Run.
type Result struct {
	Applied []Migration
	Skipped int
}

const lockKey int64 = 746295114

func (r Runner) Run(ctx context.Context, db *sql.DB) (Result, error) {
	var res Result
	if db == nil {
		return res, errors.New("nil db")
	}
	log := logger.OrNop(r.Logger).Named("migration")

	src, err := r.source()
	if err != nil {
		return res, err
	}
	migs, err := loadMigrations(src)
	if err != nil {
		return res, err
	}
	if len(migs) == 0 {
		log.Warn("no migrations found")
		return res, nil
	}

	if err := ensureSchemaMigrations(ctx, db); err != nil {
		return res, err
	}
	if err := advisoryLock(ctx, db, lockKey); err != nil {
		return res, err
	}
	defer func() {
		_ = advisoryUnlock(context.Background(), db, lockKey)
	}()

	applied, err := getApplied(ctx, db)
	if err != nil {
		return res, err
	}
	pending, err := plan(migs, applied)
	if err != nil {
		return res, err
	}
	res.Skipped = len(migs) - len(pending)

	for _, m := range pending {
		if err := applyOne(ctx, db, m); err != nil {
			return res, err
		}
		res.Applied = append(res.Applied, m)
		log.Info("migration applied", zap.Int64("version", m.Version), zap.String("name", m.Name))
	}
	log.Info("migrations up to date", zap.Int("applied", len(res.Applied)), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (r Runner) source() (fs.FS, error) {
	if r.FS != nil {
		return r.FS, nil
	}
	dir, err := resolveDir(r.Dir)
	if err != nil {
		return nil, err
	}
	return os.DirFS(dir), nil
}

// plan returns the migrations not yet applied. An edited migration or an
// applied version the source no longer has is an error.
func plan(migs []Migration, applied map[int64]appliedMigration) ([]Migration, error) {
	known := make(map[int64]struct{}, len(migs))
	pending := make([]Migration, 0, len(migs))
	for _, m := range migs {
		known[m.Version] = struct{}{}
		a, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if a.Checksum != m.Checksum {
			return nil, fmt.Errorf("%w: version=%d name=%s", ErrChecksumMismatch, m.Version, m.Name)
		}
	}
	for v := range applied {
		if _, ok := known[v]; !ok {
			return nil, fmt.Errorf("%w: version=%d", ErrUnknownVersion, v)
		}
	}
	return pending, nil
}

type Migration struct {
	Version  int64
	Name     string
	Filename string
	SQL      string
	Checksum string
}

type appliedMigration struct {
	Version  int64
	Checksum string
}

var fileRe = regexp.MustCompile(`^V(\d+)__([A-Za-z0-9_.-]+)\.sql$`)

func resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return dir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), "migrations"), nil
}

func loadMigrations(src fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	migs := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		m := fileRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version: %s", name)
		}

		b, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, err
		}
		sqlText := strings.TrimSpace(string(b))
		if sqlText == "" {
			return nil, fmt.Errorf("empty migration file: %s", name)
		}

		h := sha256.Sum256([]byte(sqlText))
		migs = append(migs, Migration{
			Version:  v,
			Name:     m[2],
			Filename: name,
			SQL:      sqlText,
			Checksum: hex.EncodeToString(h[:]),
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	for i := 1; i < len(migs); i++ {
		if migs[i].Version == migs[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version: %d", migs[i].Version)
		}
	}

	return migs, nil
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func advisoryLock(ctx context.Context, db *sql.DB, key int64) error {
	_, err := db.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key)
	return err
}

func advisoryUnlock(ctx context.Context, db *sql.DB, key int64) error {
	_, err := db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, key)
	return err
}

func getApplied(ctx context.Context, db *sql.DB) (map[int64]appliedMigration, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]appliedMigration{}
	for rows.Next() {
		var v int64
		var c string
		if err := rows.Scan(&v, &c); err != nil {
			return nil, err
		}
		out[v] = appliedMigration{Version: v, Checksum: c}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply %s: %w", m.Filename, err)
	}

	appliedAt := time.Now().UTC()
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES ($1, $2, $3, $4)`,
		m.Version,
		m.Name,
		m.Checksum,
		appliedAt,
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}
