// Package db is the checkpoint journal kept next to a backup. It records the cursor to resume each
// target from and which posts were saved. The file tree stays the source of truth: losing the
// journal only loses the resume hint.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"soupbackup/crawler"
	"soupbackup/db/migrations"
	"soupbackup/log"
	"soupbackup/oops"

	_ "modernc.org/sqlite"
)

type Journal struct {
	db *sql.DB
}

var _ crawler.Journal = (*Journal)(nil)

var pragmas = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA synchronous = normal`,
	`PRAGMA journal_size_limit = 6144000`,
	`PRAGMA busy_timeout = 1000`,
}

func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.Wrap(err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Wrapf(err, "open journal %s", path)
	}
	// Parallel targets share the journal; a single connection keeps the pragmas and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, oops.Wrapf(err, "journal %s", pragma)
		}
	}

	journal := &Journal{db: db}
	if err := journal.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

func (j *Journal) Close() error {
	return oops.Wrap(j.db.Close())
}

// CloseOrWarn is for deferred closes at the end of a command, where a failure is worth reporting
// but not worth failing the command over.
func (j *Journal) CloseOrWarn() {
	if err := j.Close(); err != nil {
		log.Warn().Err(err).Msg("Couldn't close journal")
	}
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `create table if not exists schema_migrations (version text primary key)`)
	if err != nil {
		return oops.Wrap(err)
	}

	rows, err := j.db.QueryContext(ctx, `select version from schema_migrations`)
	if err != nil {
		return oops.Wrap(err)
	}
	dbVersions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			_ = rows.Close()
			return oops.Wrap(err)
		}
		dbVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		return oops.Wrap(err)
	}
	_ = rows.Close()

	for _, migration := range migrations.All {
		version := migration.Version()
		if dbVersions[version] {
			continue
		}
		if err := j.applyMigration(ctx, migration); err != nil {
			return oops.Wrapf(err, "migration %s", version)
		}
	}
	return nil
}

func (j *Journal) applyMigration(ctx context.Context, migration migrations.Migration) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			if recoveredErr, ok := r.(error); ok {
				err = recoveredErr
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	migration.Up(migrations.WrapTx(tx))
	_, err = tx.ExecContext(ctx, `insert into schema_migrations (version) values (?)`, migration.Version())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const timeLayout = time.RFC3339

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func (j *Journal) PageDone(ctx context.Context, targetName string, nextCursor string, isFeedDone bool) error {
	_, err := j.db.ExecContext(ctx, `
		insert into checkpoints (target, cursor, is_done, pages, updated_at)
		values (?, ?, ?, 1, ?)
		on conflict (target) do update set
			cursor = excluded.cursor,
			is_done = excluded.is_done,
			pages = checkpoints.pages + 1,
			updated_at = excluded.updated_at
	`, targetName, nextCursor, isFeedDone, now())
	return oops.Wrap(err)
}

func (j *Journal) PostSaved(
	ctx context.Context, targetName string, post *crawler.Post, path string, result crawler.WriteResult,
) error {
	timestamp := now()
	_, err := j.db.ExecContext(ctx, `
		insert into posts (target, id, type, path, result, written_at, seen_at)
		values (?, ?, ?, ?, ?, ?, ?)
		on conflict (target, id) do update set
			type = excluded.type,
			path = excluded.path,
			result = excluded.result,
			seen_at = excluded.seen_at
	`, targetName, post.Id, post.Type, path, result.String(), timestamp, timestamp)
	return oops.Wrap(err)
}

// LoadCursor returns where an interrupted backup of the target stopped, or "" when the last backup
// reached the end of the feed or there is none.
func (j *Journal) LoadCursor(ctx context.Context, targetName string) (string, error) {
	var cursor string
	var isDone bool
	row := j.db.QueryRowContext(ctx, `select cursor, is_done from checkpoints where target = ?`, targetName)
	err := row.Scan(&cursor, &isDone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", oops.Wrap(err)
	}
	if isDone {
		return "", nil
	}
	return cursor, nil
}

type Checkpoint struct {
	Target    string
	Cursor    string
	IsDone    bool
	Pages     int
	Posts     int
	UpdatedAt time.Time
}

// Checkpoints lists every target ever backed up into this directory, by name.
func (j *Journal) Checkpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := j.db.QueryContext(ctx, `
		select
			checkpoints.target, checkpoints.cursor, checkpoints.is_done, checkpoints.pages,
			checkpoints.updated_at,
			(select count(1) from posts where posts.target = checkpoints.target)
		from checkpoints
		order by checkpoints.target asc
	`)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var checkpoint Checkpoint
		var updatedAt string
		err := rows.Scan(
			&checkpoint.Target, &checkpoint.Cursor, &checkpoint.IsDone, &checkpoint.Pages, &updatedAt,
			&checkpoint.Posts,
		)
		if err != nil {
			return nil, oops.Wrap(err)
		}
		checkpoint.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
		if err != nil {
			return nil, oops.Wrapf(err, "checkpoint %s", checkpoint.Target)
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Wrap(err)
	}
	return checkpoints, nil
}

type TypeCount struct {
	Type  string
	Count int
}

func (j *Journal) PostTypeCounts(ctx context.Context, targetName string) ([]TypeCount, error) {
	rows, err := j.db.QueryContext(ctx, `
		select type, count(1) from posts where target = ? group by type order by count(1) desc, type asc
	`, targetName)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var count TypeCount
		if err := rows.Scan(&count.Type, &count.Count); err != nil {
			return nil, oops.Wrap(err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Wrap(err)
	}
	return counts, nil
}
