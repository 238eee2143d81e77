package database

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const (
	mariadbDumpTool    = "mariadb-dump"
	mariadbRestoreTool = "mariadb"
)

type MariaDBDatabase struct {
	base
}

func NewMariaDB(runner Runner, open Opener) *MariaDBDatabase {
	return &MariaDBDatabase{base: newBase(domain.EngineMariaDB, runner, open)}
}

func (m *MariaDBDatabase) connectionArgs(creds domain.Credentials) []string {
	return []string{
		fmt.Sprintf("--host=%s", creds.Host),
		fmt.Sprintf("--port=%d", creds.Port),
		fmt.Sprintf("--user=%s", creds.User),
	}
}

func (m *MariaDBDatabase) Backup(ctx context.Context, name string, creds domain.Credentials, dir string) (*domain.Artifact, error) {
	return m.dump(ctx, name, dir, mariadbDumpTool, true, func(string) Command {
		args := append(m.connectionArgs(creds),
			"--single-transaction",
			"--quick",
			"--routines",
			"--triggers",
			"--events",
			"--databases",
			name,
		)
		return Command{
			Name: mariadbDumpTool,
			Args: args,
			Env:  []string{"MYSQL_PWD=" + creds.Password},
		}
	})
}

// Restore feeds the dump to the mariadb client. Dumps taken with
// --databases recreate and select the database themselves.
func (m *MariaDBDatabase) Restore(ctx context.Context, name string, creds domain.Credentials, sqlPath string) error {
	f, err := os.Open(sqlPath)
	if err != nil {
		return domain.NewIOError("open restore file", sqlPath, err)
	}
	defer f.Close()

	return m.restore(ctx, name, sqlPath, mariadbRestoreTool, Command{
		Name:  mariadbRestoreTool,
		Args:  m.connectionArgs(creds),
		Env:   []string{"MYSQL_PWD=" + creds.Password},
		Stdin: f,
	})
}

func (m *MariaDBDatabase) ListDatabases(ctx context.Context, creds domain.Credentials) ([]string, error) {
	cfg := mysql.NewConfig()
	cfg.User = creds.User
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = creds.Host + ":" + strconv.Itoa(creds.Port)

	return m.queryNames(ctx, "mysql", cfg.FormatDSN(), "SHOW DATABASES")
}
