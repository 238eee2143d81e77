package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// base carries what every engine backend shares.
type base struct {
	engine domain.Engine
	runner Runner
	open   Opener
	now    func() time.Time
}

func newBase(engine domain.Engine, runner Runner, open Opener) base {
	if runner == nil {
		runner = ExecRunner{}
	}
	if open == nil {
		open = sql.Open
	}
	return base{engine: engine, runner: runner, open: open, now: time.Now}
}

func (b *base) Engine() domain.Engine {
	return b.engine
}

// dump runs tool to produce {Engine}_{name}_{ts}.sql in dir. When toStdout is
// set the tool's standard output becomes the file, otherwise the tool is
// expected to write the path it was given. A failed dump leaves no file.
func (b *base) dump(ctx context.Context, name, dir, tool string, toStdout bool, build func(path string) Command) (*domain.Artifact, error) {
	if _, err := b.runner.LookPath(tool); err != nil {
		return nil, domain.NewBackupError(b.engine, name, fmt.Errorf("%s not found: %w", tool, err))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewIOError("create staging directory", dir, err)
	}

	createdAt := b.now().UTC()
	path := filepath.Join(dir, domain.ArtifactFilename(b.engine, name, createdAt))

	cmd := build(path)
	if err := b.run(ctx, cmd, path, toStdout); err != nil {
		os.Remove(path)
		return nil, domain.NewBackupError(b.engine, name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewBackupError(b.engine, name, fmt.Errorf("%s produced no output: %w", tool, err))
	}

	return &domain.Artifact{
		Database:  name,
		Engine:    b.engine,
		CreatedAt: createdAt,
		Path:      path,
		Size:      info.Size(),
	}, nil
}

func (b *base) run(ctx context.Context, cmd Command, path string, toStdout bool) error {
	if !toStdout {
		return b.runner.Run(ctx, cmd)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	cmd.Stdout = f
	if err := b.runner.Run(ctx, cmd); err != nil {
		return err
	}
	return f.Sync()
}

// restore checks the scratch file and the tool, then runs cmd.
func (b *base) restore(ctx context.Context, name, sqlPath, tool string, cmd Command) error {
	if err := b.checkRestore(name, sqlPath, tool); err != nil {
		return err
	}
	return b.runRestore(ctx, name, cmd)
}

func (b *base) checkRestore(name, sqlPath, tool string) error {
	if _, err := os.Stat(sqlPath); err != nil {
		return domain.NewIOError("open restore file", sqlPath, err)
	}
	if _, err := b.runner.LookPath(tool); err != nil {
		return fmt.Errorf("restore of %s database '%s' failed: %s not found: %w", b.engine, name, tool, err)
	}
	return nil
}

func (b *base) runRestore(ctx context.Context, name string, cmd Command) error {
	if err := b.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("restore of %s database '%s' failed: %w", b.engine, name, err)
	}
	return nil
}

// queryNames runs a single-column query and collects the rows.
func (b *base) queryNames(ctx context.Context, driver, dsn, query string) ([]string, error) {
	db, err := b.open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", b.engine, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s databases: %w", b.engine, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
