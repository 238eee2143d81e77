package database

import (
	"fmt"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Registry maps engines to their backends.
type Registry struct {
	backends map[domain.Engine]domain.Database
}

func NewRegistry(backends ...domain.Database) *Registry {
	r := &Registry{backends: make(map[domain.Engine]domain.Database, len(backends))}
	for _, b := range backends {
		r.backends[b.Engine()] = b
	}
	return r
}

// NewDefaultRegistry registers the MariaDB, PostgreSQL and MSSQL backends.
func NewDefaultRegistry(runner Runner, open Opener) *Registry {
	return NewRegistry(
		NewMariaDB(runner, open),
		NewPostgreSQL(runner, open),
		NewMSSQL(runner, open),
	)
}

func (r *Registry) Get(engine domain.Engine) (domain.Database, error) {
	b, ok := r.backends[engine]
	if !ok {
		return nil, domain.NewConfigError("type", fmt.Sprintf("no backend registered for engine %q", engine))
	}
	return b, nil
}

func (r *Registry) Supports(engine domain.Engine) bool {
	_, ok := r.backends[engine]
	return ok
}
