package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Engine names a database server technology.
type Engine string

const (
	EngineMariaDB    Engine = "MariaDB"
	EnginePostgreSQL Engine = "PostgreSQL"
	EngineMSSQL      Engine = "MSSQL"
)

// ParseEngine normalises the accepted spellings of an engine name. Unknown
// names are returned as given so that the caller can report them.
func ParseEngine(s string) Engine {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mariadb", "mysql":
		return EngineMariaDB
	case "postgresql", "postgres", "pg":
		return EnginePostgreSQL
	case "mssql", "sqlserver":
		return EngineMSSQL
	default:
		return Engine(strings.TrimSpace(s))
	}
}

// Dir is the lowercase directory name used in storage locations.
func (e Engine) Dir() string {
	return strings.ToLower(string(e))
}

// Credentials are fully resolved connection parameters for one database.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Address returns host:port.
func (c Credentials) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Address())
}

// Database produces and restores dumps for one engine.
type Database interface {
	Engine() Engine
	// Backup dumps the named database into dir. On failure no artifact is
	// returned and any partial file is removed.
	Backup(ctx context.Context, name string, creds Credentials, dir string) (*Artifact, error)
	// Restore loads an uncompressed dump into the named database.
	Restore(ctx context.Context, name string, creds Credentials, sqlPath string) error
	ListDatabases(ctx context.Context, creds Credentials) ([]string, error)
}
