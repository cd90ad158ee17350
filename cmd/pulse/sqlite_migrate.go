package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

// migrateSQLite repairs databases written by older builds: manifests missing
// for stored datasets and empty strings where the schema now uses NULL.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	path := sqlitePath(ctx, db)
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}

	log.Printf("pulse: sqlite: path=%s user_version=%d", path, userVersion)

	columns, err := sqliteColumns(ctx, db, "unified_posts")
	if err != nil {
		return fmt.Errorf("sqlite: describe unified_posts: %w", err)
	}
	if len(columns) == 0 {
		log.Printf("pulse: sqlite: unified_posts table missing; skipping migration")
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	backfill := []struct {
		query string
		label string
	}{
		{`INSERT INTO unified_datasets (run_date, rows, written_at)
SELECT run_date, COUNT(*), ? FROM unified_posts
WHERE run_date NOT IN (SELECT run_date FROM unified_datasets)
GROUP BY run_date;`, "unified_datasets"},
		{`INSERT INTO daily_snapshots (date, platforms, written_at)
SELECT date, COUNT(*), ? FROM daily_metrics
WHERE date NOT IN (SELECT date FROM daily_snapshots)
GROUP BY date;`, "daily_snapshots"},
	}
	for _, step := range backfill {
		res, execErr := db.ExecContext(ctx, step.query, now)
		if execErr != nil {
			return fmt.Errorf("sqlite: backfill %s: %w", step.label, execErr)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Printf("pulse: sqlite: backfilled %s manifests=%d", step.label, n)
		}
	}

	normalize := []string{"content", "author_id", "posted_at"}
	for _, field := range normalize {
		res, execErr := db.ExecContext(ctx, fmt.Sprintf(`UPDATE unified_posts SET %s=NULL WHERE TRIM(%s)='';`, field, field))
		if execErr != nil {
			return fmt.Errorf("sqlite: normalize %s: %w", field, execErr)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Printf("pulse: sqlite: normalized empty %s=%d", field, n)
		}
	}

	var orphans int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unified_datasets d
WHERE d.rows != (SELECT COUNT(*) FROM unified_posts p WHERE p.run_date = d.run_date);`).Scan(&orphans); err != nil {
		return fmt.Errorf("sqlite: check manifests: %w", err)
	}

	hasIndex, err := sqliteHasIndex(ctx, db, "unified_posts", "unified_posts_platform")
	if err != nil {
		return fmt.Errorf("sqlite: inspect indices: %w", err)
	}

	log.Printf("pulse: sqlite: unified_posts_platform=%v manifest_mismatches=%d", hasIndex, orphans)
	return nil
}

// pragmaRows runs a PRAGMA and returns each row keyed by column name.
// NULL values come back as empty strings.
func pragmaRows(ctx context.Context, db *sql.DB, pragma string) ([]map[string]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA "+pragma+";")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for rows.Next() {
		vals := make([]sql.NullString, len(names))
		dest := make([]any, len(names))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(names))
		for i, name := range names {
			row[name] = strings.TrimSpace(vals[i].String)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	dbs, err := pragmaRows(ctx, db, "database_list")
	if err != nil {
		return "(unknown)"
	}
	for _, d := range dbs {
		if d["name"] != "main" {
			continue
		}
		if d["file"] == "" {
			return "(memory)"
		}
		return d["file"]
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&v)
	return v, err
}

// sqliteColumns describes table by lowercased column name. A missing table
// yields an empty map.
func sqliteColumns(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	info, err := pragmaRows(ctx, db, fmt.Sprintf("table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	cols := make(map[string]sqliteColumn, len(info))
	for _, c := range info {
		cols[strings.ToLower(c["name"])] = sqliteColumn{
			Name:        c["name"],
			Type:        c["type"],
			NotNull:     c["notnull"] == "1",
			DefaultText: c["dflt_value"],
		}
	}
	return cols, nil
}

func sqliteHasIndex(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	list, err := pragmaRows(ctx, db, fmt.Sprintf("index_list(%q)", table))
	if err != nil {
		return false, err
	}
	for _, idx := range list {
		if strings.EqualFold(idx["name"], index) {
			return true, nil
		}
	}
	return false, nil
}
