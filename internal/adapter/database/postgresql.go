package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const (
	pgDumpTool    = "pg_dump"
	pgRestoreTool = "psql"
)

type PostgreSQLDatabase struct {
	base
}

func NewPostgreSQL(runner Runner, open Opener) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{base: newBase(domain.EnginePostgreSQL, runner, open)}
}

func (p *PostgreSQLDatabase) connectionArgs(creds domain.Credentials) []string {
	return []string{
		fmt.Sprintf("--host=%s", creds.Host),
		fmt.Sprintf("--port=%d", creds.Port),
		fmt.Sprintf("--username=%s", creds.User),
		"--no-password",
	}
}

func (p *PostgreSQLDatabase) Backup(ctx context.Context, name string, creds domain.Credentials, dir string) (*domain.Artifact, error) {
	return p.dump(ctx, name, dir, pgDumpTool, false, func(path string) Command {
		args := append(p.connectionArgs(creds),
			"--format=plain",
			"--no-owner",
			fmt.Sprintf("--file=%s", path),
			name,
		)
		return Command{
			Name: pgDumpTool,
			Args: args,
			Env:  []string{"PGPASSWORD=" + creds.Password},
		}
	})
}

func (p *PostgreSQLDatabase) Restore(ctx context.Context, name string, creds domain.Credentials, sqlPath string) error {
	args := append(p.connectionArgs(creds),
		fmt.Sprintf("--dbname=%s", name),
		"--quiet",
		"-v", "ON_ERROR_STOP=1",
		fmt.Sprintf("--file=%s", sqlPath),
	)
	return p.restore(ctx, name, sqlPath, pgRestoreTool, Command{
		Name: pgRestoreTool,
		Args: args,
		Env:  []string{"PGPASSWORD=" + creds.Password},
	})
}

func (p *PostgreSQLDatabase) ListDatabases(ctx context.Context, creds domain.Credentials) ([]string, error) {
	return p.queryNames(ctx, "pgx", postgresDSN(creds),
		"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
}

func postgresDSN(creds domain.Credentials) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.User, creds.Password),
		Host:     net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
		Path:     "/postgres",
		RawQuery: "sslmode=prefer",
	}
	return u.String()
}
