package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const (
	mssqlDumpTool    = "mssql-scripter"
	mssqlRestoreTool = "sqlcmd"
	mssqlDriver      = "sqlserver"
)

type MSSQLDatabase struct {
	base
}

func NewMSSQL(runner Runner, open Opener) *MSSQLDatabase {
	return &MSSQLDatabase{base: newBase(domain.EngineMSSQL, runner, open)}
}

func (m *MSSQLDatabase) server(creds domain.Credentials) string {
	return fmt.Sprintf("%s,%d", creds.Host, creds.Port)
}

func (m *MSSQLDatabase) Backup(ctx context.Context, name string, creds domain.Credentials, dir string) (*domain.Artifact, error) {
	return m.dump(ctx, name, dir, mssqlDumpTool, false, func(path string) Command {
		return Command{
			Name: mssqlDumpTool,
			Args: []string{
				"-S", m.server(creds),
				"-U", creds.User,
				"-d", name,
				"--schema-and-data",
				"--file-path", path,
			},
			Env: []string{"MSSQL_SCRIPTER_PASSWORD=" + creds.Password},
		}
	})
}

// Restore runs the script with the database in single-user mode. The
// database is switched back to multi-user mode even when the script fails.
func (m *MSSQLDatabase) Restore(ctx context.Context, name string, creds domain.Credentials, sqlPath string) (err error) {
	if err := m.checkRestore(name, sqlPath, mssqlRestoreTool); err != nil {
		return err
	}

	db, err := m.open(mssqlDriver, mssqlDSN(creds))
	if err != nil {
		return fmt.Errorf("failed to open MSSQL connection: %w", err)
	}
	defer db.Close()

	ident := quoteIdentifier(name)
	if _, err := db.ExecContext(ctx, "ALTER DATABASE "+ident+" SET SINGLE_USER WITH ROLLBACK IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to set %s to single-user mode: %w", name, err)
	}
	defer func() {
		// ctx may already be cancelled here.
		if _, mErr := db.ExecContext(context.WithoutCancel(ctx), "ALTER DATABASE "+ident+" SET MULTI_USER"); mErr != nil {
			mErr = fmt.Errorf("failed to set %s back to multi-user mode: %w", name, mErr)
			if err == nil {
				err = mErr
			} else {
				err = fmt.Errorf("%w; %v", err, mErr)
			}
		}
	}()

	return m.runRestore(ctx, name, Command{
		Name: mssqlRestoreTool,
		Args: []string{
			"-S", m.server(creds),
			"-U", creds.User,
			"-d", name,
			"-b",
			"-i", sqlPath,
		},
		Env: []string{"SQLCMDPASSWORD=" + creds.Password},
	})
}

func (m *MSSQLDatabase) ListDatabases(ctx context.Context, creds domain.Credentials) ([]string, error) {
	return m.queryNames(ctx, mssqlDriver, mssqlDSN(creds), "SELECT name FROM sys.databases ORDER BY name")
}

func mssqlDSN(creds domain.Credentials) string {
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(creds.User, creds.Password),
		Host:     net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
		RawQuery: url.Values{"database": {"master"}}.Encode(),
	}
	return u.String()
}

func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
