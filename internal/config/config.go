package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Supported backup destinations.
const (
	DestinationLocal  = "Local"
	DestinationAzure  = "AzureBlob"
	DestinationS3     = "S3"
	DestinationGCS    = "GCS"
	DestinationGDrive = "GDrive"
)

// Retention scopes accepted by general.retention_scope.
const (
	ScopeDatabase = "database"
	ScopeGlobal   = "global"
)

type Config struct {
	App        AppConfig      `mapstructure:"app"`
	General    GeneralConfig  `mapstructure:"general"`
	MariaDB    EngineDefaults `mapstructure:"mariadb"`
	PostgreSQL EngineDefaults `mapstructure:"postgresql"`
	MSSQL      EngineDefaults `mapstructure:"mssql"`
	Local      LocalConfig    `mapstructure:"local"`
	AzureBlob  AzureConfig    `mapstructure:"azureblob"`
	S3         S3Config       `mapstructure:"s3"`
	GCS        GCSConfig      `mapstructure:"gcs"`
	GDrive     GDriveConfig   `mapstructure:"gdrive"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	History    HistoryConfig  `mapstructure:"history"`

	// Per-database override sections keyed by lowercased database name.
	Entries map[string]*DatabaseEntry `mapstructure:"-"`

	entryErrors map[string]error
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Rotation of log_file; zero keeps the logger's defaults.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
	LogMaxAgeDays int `mapstructure:"log_max_age_days"`
}

type GeneralConfig struct {
	Databases         []string `mapstructure:"-"`
	BackupDestination string   `mapstructure:"backup_destination"`
	RetentionDays     int      `mapstructure:"retention_days"`
	DefaultDBType     string   `mapstructure:"default_db_type"`
	RetentionScope    string   `mapstructure:"retention_scope"`
	StagingDir        string   `mapstructure:"staging_dir"`
}

// EngineDefaults are the connection parameters shared by every database of
// one engine.
type EngineDefaults struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DatabaseEntry holds the optional overrides of a single database.
type DatabaseEntry struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type LocalConfig struct {
	BackupPath string `mapstructure:"backup_path"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	ContainerName    string `mapstructure:"container_name"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type GDriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("general.retention_days", 7)
	v.SetDefault("general.default_db_type", string(domain.EngineMariaDB))
	v.SetDefault("local.backup_path", "./backups")
	v.SetDefault("history.path", "dbkeeper.db")
}

// Load reads an INI, YAML, TOML or JSON file depending on its extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DBKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".cfg", ".conf":
		sections, err := readINI(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := v.MergeConfigMap(sections); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

// readINI turns every INI section into a nested map. Keys of the DEFAULT
// section are inherited by every other section.
func readINI(path string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, err
	}

	// Insensitive loading lowercases lookups but keeps the parsed DEFAULT
	// section under its original name, so match it by name.
	defaults := make(map[string]string)
	for _, section := range file.Sections() {
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			for k, val := range section.KeysHash() {
				defaults[k] = val
			}
		}
	}

	out := make(map[string]any)
	for _, section := range file.Sections() {
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			continue
		}
		values := make(map[string]any, len(defaults))
		for k, val := range defaults {
			values[k] = val
		}
		for k, val := range section.KeysHash() {
			values[k] = val
		}
		out[strings.ToLower(section.Name())] = values
	}
	return out, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.General.Databases = splitList(v.Get("general.databases"))
	cfg.Entries = make(map[string]*DatabaseEntry)
	cfg.entryErrors = make(map[string]error)

	for _, name := range cfg.General.Databases {
		key := strings.ToLower(name)
		sub := v.Sub(key)
		if sub == nil {
			continue
		}
		var entry DatabaseEntry
		if err := sub.Unmarshal(&entry); err != nil {
			cfg.entryErrors[key] = domain.NewConfigError(name, fmt.Sprintf("invalid section: %v", err))
			continue
		}
		cfg.Entries[key] = &entry
	}

	return &cfg, nil
}

// splitList accepts the comma separated INI form as well as native lists.
func splitList(raw any) []string {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []any:
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
	default:
		items = []string{fmt.Sprint(val)}
	}

	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseDestination normalises a backup_destination value. The second result
// is false for destinations with no storage backend.
func ParseDestination(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return DestinationLocal, true
	case "azureblob", "azure":
		return DestinationAzure, true
	case "s3":
		return DestinationS3, true
	case "gcs":
		return DestinationGCS, true
	case "gdrive", "googledrive":
		return DestinationGDrive, true
	default:
		return s, false
	}
}

// Destination returns the normalised backup destination.
func (c *Config) Destination() string {
	dest, _ := ParseDestination(c.General.BackupDestination)
	return dest
}

// Validate reports problems that make a whole run impossible.
func (c *Config) Validate() error {
	dest, ok := ParseDestination(c.General.BackupDestination)
	if c.General.BackupDestination == "" {
		return domain.NewConfigError("general.backup_destination", "is required")
	}
	if !ok {
		return domain.NewConfigError("general.backup_destination",
			fmt.Sprintf("unsupported backup destination %q", c.General.BackupDestination))
	}

	switch strings.ToLower(c.General.RetentionScope) {
	case "", ScopeDatabase, ScopeGlobal:
	default:
		return domain.NewConfigError("general.retention_scope",
			fmt.Sprintf("must be %q or %q", ScopeDatabase, ScopeGlobal))
	}

	switch dest {
	case DestinationLocal:
		if c.Local.BackupPath == "" {
			return domain.NewConfigError("local.backup_path", "is required")
		}
	case DestinationAzure:
		if c.AzureBlob.ConnectionString == "" {
			return domain.NewConfigError("azureblob.connection_string", "is required")
		}
		if c.AzureBlob.ContainerName == "" {
			return domain.NewConfigError("azureblob.container_name", "is required")
		}
	case DestinationS3:
		if c.S3.Bucket == "" {
			return domain.NewConfigError("s3.bucket", "is required")
		}
		if c.S3.Region == "" {
			return domain.NewConfigError("s3.region", "is required")
		}
	case DestinationGCS:
		if c.GCS.Bucket == "" {
			return domain.NewConfigError("gcs.bucket", "is required")
		}
	case DestinationGDrive:
		if c.GDrive.CredentialsFile == "" {
			return domain.NewConfigError("gdrive.credentials_file", "is required")
		}
		if c.GDrive.FolderID == "" {
			return domain.NewConfigError("gdrive.folder_id", "is required")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return domain.NewConfigError("telegram.bot_token", "is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return domain.NewConfigError("telegram.chat_id", "is required when telegram is enabled")
		}
	}

	return nil
}

// PerDatabaseRetention reports whether retention runs once per database
// rather than once over the whole backend.
func (c *Config) PerDatabaseRetention() bool {
	switch strings.ToLower(c.General.RetentionScope) {
	case ScopeDatabase:
		return true
	case ScopeGlobal:
		return false
	default:
		return c.Destination() == DestinationLocal
	}
}

// EngineDefaults returns the section of the given engine.
func (c *Config) EngineDefaults(engine domain.Engine) (EngineDefaults, bool) {
	switch engine {
	case domain.EngineMariaDB:
		return c.MariaDB, true
	case domain.EnginePostgreSQL:
		return c.PostgreSQL, true
	case domain.EngineMSSQL:
		return c.MSSQL, true
	default:
		return EngineDefaults{}, false
	}
}

// Entry returns the override section of a database, or nil.
func (c *Config) Entry(name string) *DatabaseEntry {
	return c.Entries[strings.ToLower(name)]
}
