package usecase

import (
	"github.com/semmidev/dbkeeper/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Resolver maps a configured database name to its engine and credentials.
type Resolver interface {
	Databases() []string
	Engine(name string) (domain.Engine, error)
	Credentials(name string, engine domain.Engine) (domain.Credentials, error)
}

// Backends returns the DatabaseBackend of an engine.
type Backends interface {
	Get(engine domain.Engine) (domain.Database, error)
}

// Stage is a state of the per-database backup or restore state machine.
type Stage string

const (
	StageResolving   Stage = "Resolving"
	StageDumping     Stage = "Dumping"
	StageHashing     Stage = "Hashing"
	StageCompressing Stage = "Compressing"
	StageUploading   Stage = "Uploading"
	StageUploaded    Stage = "Uploaded"
	StagePruned      Stage = "Pruned"
	StageFailed      Stage = "Failed"

	StageLocating      Stage = "Locating"
	StageDecompressing Stage = "Decompressing"
	StageRestoring     Stage = "Restoring"
	StageCleaningUp    Stage = "CleaningUp"
	StageRestored      Stage = "Restored"
)
