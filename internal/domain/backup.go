package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// TimestampLayout is the timestamp embedded in artifact file names.
const TimestampLayout = "20060102150405"

const (
	DumpExtension       = ".sql"
	CompressedExtension = ".gz"
)

// Artifact is a single backup of one database produced during a run.
type Artifact struct {
	Database    string
	Engine      Engine
	CreatedAt   time.Time
	Path        string
	ContentHash string // sha256 of the raw dump
	ArchiveHash string // sha256 of the compressed file as stored
	Size        int64
	Compressed  bool
}

// Filename returns the base name of the artifact's current file.
func (a *Artifact) Filename() string {
	return path.Base(strings.ReplaceAll(a.Path, "\\", "/"))
}

// Location returns the storage key the artifact is persisted under.
func (a *Artifact) Location() string {
	return StorageLocation(a.Engine, a.Database, a.Filename())
}

// ArtifactFilename builds {Engine}_{database}_{YYYYmmddHHMMSS}.sql.
func ArtifactFilename(engine Engine, database string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", engine, database, t.UTC().Format(TimestampLayout), DumpExtension)
}

// ArtifactPrefix is the file name prefix shared by every artifact of a database.
func ArtifactPrefix(engine Engine, database string) string {
	return fmt.Sprintf("%s_%s_", engine, database)
}

// IsArtifactOf reports whether a stored file name is a compressed artifact
// of the given database.
func IsArtifactOf(name string, engine Engine, database string) bool {
	return strings.HasPrefix(name, ArtifactPrefix(engine, database)) &&
		strings.HasSuffix(name, DumpExtension+CompressedExtension)
}

// StorageLocation is the relative key {engine}/{database}/{file} used by every
// storage backend.
func StorageLocation(engine Engine, database, filename string) string {
	return path.Join(engine.Dir(), database, filename)
}

// LocationPrefix is the key prefix of everything stored for a database.
func LocationPrefix(engine Engine, database string) string {
	return engine.Dir() + "/" + database + "/"
}

// RetentionScope narrows a retention pass to one database. The zero value
// covers the whole backend.
type RetentionScope struct {
	Database string
	Engine   Engine
}

func (s RetentionScope) IsGlobal() bool {
	return s.Database == "" || s.Engine == ""
}

// Prefix returns the key prefix covered by the scope, empty for global.
func (s RetentionScope) Prefix() string {
	if s.IsGlobal() {
		return ""
	}
	return LocationPrefix(s.Engine, s.Database)
}

func (s RetentionScope) String() string {
	if s.IsGlobal() {
		return "all backups"
	}
	return s.Prefix()
}

// Expired reports whether something last modified at modTime falls before
// the cutoff. Both sides are compared in UTC; equality is not expired.
func Expired(modTime, cutoff time.Time) bool {
	return modTime.UTC().Before(cutoff.UTC())
}

// RetentionCutoff returns now minus the retention period.
func RetentionCutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
}
