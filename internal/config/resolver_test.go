package config

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semmidev/dbkeeper/internal/domain"
)

func TestResolveCredentials(t *testing.T) {
	t.Parallel()

	defaults := EngineDefaults{Host: "db", Port: 3306, User: "root", Password: "rootpw"}

	t.Run("no entry uses defaults", func(t *testing.T) {
		t.Parallel()
		creds, err := ResolveCredentials("shop", nil, defaults)
		require.NoError(t, err)
		assert.Equal(t, domain.Credentials{Host: "db", Port: 3306, User: "root", Password: "rootpw"}, creds)
	})

	t.Run("partial override", func(t *testing.T) {
		t.Parallel()
		creds, err := ResolveCredentials("shop", &DatabaseEntry{User: "shop", Password: "shoppw"}, defaults)
		require.NoError(t, err)
		assert.Equal(t, domain.Credentials{Host: "db", Port: 3306, User: "shop", Password: "shoppw"}, creds)
	})

	t.Run("empty strings fall through", func(t *testing.T) {
		t.Parallel()
		creds, err := ResolveCredentials("shop", &DatabaseEntry{Host: "", Port: 0, User: "", Password: ""}, defaults)
		require.NoError(t, err)
		assert.Equal(t, "db", creds.Host)
		assert.Equal(t, "rootpw", creds.Password)
	})

	t.Run("missing password everywhere", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveCredentials("shop", &DatabaseEntry{User: "shop"}, EngineDefaults{Host: "db", Port: 3306})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfig))

		var cfgErr *domain.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "shop.password", cfgErr.Field)
	})

	t.Run("missing port", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveCredentials("shop", nil, EngineDefaults{Host: "db", User: "u", Password: "p"})
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "shop.port", cfgErr.Field)
	})
}

// Every field is the override when it is set and the default otherwise.
func TestResolveCredentials_Randomised(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 42))
	pick := func(s string) string {
		if rng.IntN(2) == 0 {
			return ""
		}
		return s
	}
	pickPort := func(p int) int {
		switch rng.IntN(3) {
		case 0:
			return 0
		case 1:
			return -p
		default:
			return p
		}
	}
	choose := func(override, def string) string {
		if override != "" {
			return override
		}
		return def
	}

	for i := 0; i < 500; i++ {
		defaults := EngineDefaults{
			Host:     pick(fmt.Sprintf("default-host-%d", i)),
			Port:     pickPort(1000 + i),
			User:     pick("default-user"),
			Password: pick("default-pw"),
		}
		entry := &DatabaseEntry{
			Host:     pick(fmt.Sprintf("db-host-%d", i)),
			Port:     pickPort(2000 + i),
			User:     pick("db-user"),
			Password: pick("db-pw"),
		}

		want := domain.Credentials{
			Host:     choose(entry.Host, defaults.Host),
			Port:     defaults.Port,
			User:     choose(entry.User, defaults.User),
			Password: choose(entry.Password, defaults.Password),
		}
		if entry.Port > 0 {
			want.Port = entry.Port
		}
		complete := want.Host != "" && want.Port > 0 && want.User != "" && want.Password != ""

		got, err := ResolveCredentials("db", entry, defaults)
		if complete {
			require.NoError(t, err, "iteration %d", i)
			assert.Equal(t, want, got, "iteration %d", i)
		} else {
			require.Error(t, err, "iteration %d", i)
			assert.True(t, errors.Is(err, domain.ErrConfig))
			assert.Equal(t, domain.Credentials{}, got)
		}
	}
}

func TestResolver_Engine(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		General:    GeneralConfig{Databases: []string{"shop", "blog", "legacy", "sales"}, DefaultDBType: "MariaDB"},
		MariaDB:    EngineDefaults{Host: "db", Port: 3306, User: "root", Password: "pw"},
		PostgreSQL: EngineDefaults{Host: "pg", Port: 5432, User: "postgres", Password: "pgpw"},
		Entries: map[string]*DatabaseEntry{
			"blog":   {Type: "postgres", Port: 6432},
			"legacy": {Type: "oracle"},
			"sales":  {Type: "  "},
		},
	}
	r := NewResolver(cfg, nil)

	engine, err := r.Engine("shop")
	require.NoError(t, err)
	assert.Equal(t, domain.EngineMariaDB, engine)

	engine, err = r.Engine("Blog")
	require.NoError(t, err)
	assert.Equal(t, domain.EnginePostgreSQL, engine)

	engine, err = r.Engine("sales")
	require.NoError(t, err)
	assert.Equal(t, domain.EngineMariaDB, engine, "blank type falls back to the default")

	_, err = r.Engine("legacy")
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "legacy.type", cfgErr.Field)

	creds, err := r.Credentials("blog", domain.EnginePostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, domain.Credentials{Host: "pg", Port: 6432, User: "postgres", Password: "pgpw"}, creds)

	assert.Equal(t, []string{"shop", "blog", "legacy", "sales"}, r.Databases())
}

func TestResolver_SupportedCheck(t *testing.T) {
	t.Parallel()

	cfg := &Config{General: GeneralConfig{DefaultDBType: "MSSQL"}}
	r := NewResolver(cfg, func(e domain.Engine) bool { return e == domain.EngineMariaDB })

	_, err := r.Engine("shop")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
	assert.Contains(t, err.Error(), "general.default_db_type")

	_, err = NewResolver(&Config{}, nil).Engine("shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no engine type configured")
}

func TestResolver_InvalidSection(t *testing.T) {
	cfg, err := Load(writeFile(t, "backup.ini", `
[General]
databases = shop
backup_destination = Local

[MariaDB]
host = db
port = 3306
user = root
password = pw

[shop]
port = not-a-number
`))
	require.NoError(t, err)

	_, err = NewResolver(cfg, nil).Engine("shop")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
}
