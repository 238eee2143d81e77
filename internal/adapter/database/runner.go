package database

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one invocation of an external dump or restore tool.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current environment.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
}

// Runner executes external tools.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, cmd Command) error
}

// Opener opens a SQL connection pool, sql.Open by default.
type Opener func(driverName, dsn string) (*sql.DB, error)

type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", c.Name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
