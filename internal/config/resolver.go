package config

import (
	"fmt"
	"strings"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// ResolveCredentials overlays the per-database overrides on the engine
// defaults field by field. A field is overridden only by a non-empty value
// (a positive port). Every field must end up set.
func ResolveCredentials(name string, entry *DatabaseEntry, defaults EngineDefaults) (domain.Credentials, error) {
	creds := domain.Credentials{
		Host:     defaults.Host,
		Port:     defaults.Port,
		User:     defaults.User,
		Password: defaults.Password,
	}

	if entry != nil {
		if entry.Host != "" {
			creds.Host = entry.Host
		}
		if entry.Port > 0 {
			creds.Port = entry.Port
		}
		if entry.User != "" {
			creds.User = entry.User
		}
		if entry.Password != "" {
			creds.Password = entry.Password
		}
	}

	switch {
	case creds.Host == "":
		return domain.Credentials{}, domain.NewConfigError(name+".host", "no value in database or engine section")
	case creds.Port <= 0:
		return domain.Credentials{}, domain.NewConfigError(name+".port", "no positive value in database or engine section")
	case creds.User == "":
		return domain.Credentials{}, domain.NewConfigError(name+".user", "no value in database or engine section")
	case creds.Password == "":
		return domain.Credentials{}, domain.NewConfigError(name+".password", "no value in database or engine section")
	}

	return creds, nil
}

// Resolver answers which engine a database runs on and how to reach it.
type Resolver struct {
	cfg       *Config
	supported func(domain.Engine) bool
}

// NewResolver builds a resolver. supported reports whether a backend is
// registered for an engine; nil accepts the three built-in engines.
func NewResolver(cfg *Config, supported func(domain.Engine) bool) *Resolver {
	if supported == nil {
		supported = func(e domain.Engine) bool {
			_, ok := cfg.EngineDefaults(e)
			return ok
		}
	}
	return &Resolver{cfg: cfg, supported: supported}
}

// Databases returns the configured database names in order.
func (r *Resolver) Databases() []string {
	return r.cfg.General.Databases
}

// Engine resolves the engine type of a database: its own type field wins,
// otherwise general.default_db_type applies.
func (r *Resolver) Engine(name string) (domain.Engine, error) {
	if err := r.cfg.entryErrors[strings.ToLower(name)]; err != nil {
		return "", err
	}

	raw := r.cfg.General.DefaultDBType
	field := "general.default_db_type"
	if entry := r.cfg.Entry(name); entry != nil && strings.TrimSpace(entry.Type) != "" {
		raw = entry.Type
		field = name + ".type"
	}

	if strings.TrimSpace(raw) == "" {
		return "", domain.NewConfigError(field, "no engine type configured")
	}

	engine := domain.ParseEngine(raw)
	if !r.supported(engine) {
		return "", domain.NewConfigError(field, fmt.Sprintf("unsupported database type %q", raw))
	}
	return engine, nil
}

// Credentials resolves the connection parameters of a database running on
// the given engine.
func (r *Resolver) Credentials(name string, engine domain.Engine) (domain.Credentials, error) {
	defaults, ok := r.cfg.EngineDefaults(engine)
	if !ok {
		return domain.Credentials{}, domain.NewConfigError(name+".type", fmt.Sprintf("no defaults for engine %q", engine))
	}
	return ResolveCredentials(name, r.cfg.Entry(name), defaults)
}
