package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig   = errors.New("configuration error")
	ErrBackup   = errors.New("backup failed")
	ErrIO       = errors.New("i/o failure")
	ErrNetwork  = errors.New("network failure")
	ErrAuth     = errors.New("authentication failure")
	ErrNotFound = errors.New("not found")
)

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for '%s': %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

type BackupError struct {
	Engine   Engine
	Database string
	Err      error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup failed for %s database '%s': %v", e.Engine, e.Database, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

func (e *BackupError) Is(target error) bool {
	return target == ErrBackup
}

func NewBackupError(engine Engine, database string, err error) *BackupError {
	return &BackupError{Engine: engine, Database: database, Err: err}
}

type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

// StorageError is a transport or credential failure of a storage backend.
type StorageError struct {
	Backend string
	Op      string
	Key     string
	Auth    bool
	Err     error
}

func (e *StorageError) Error() string {
	kind := "network"
	if e.Auth {
		kind = "auth"
	}
	return fmt.Sprintf("%s %s failed for '%s' (%s): %v", e.Backend, e.Op, e.Key, kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	if e.Auth {
		return target == ErrAuth
	}
	return target == ErrNetwork
}

func NewNetworkError(backend, op, key string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Key: key, Err: err}
}

func NewAuthError(backend, op, key string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Key: key, Auth: true, Err: err}
}

type NotFoundError struct {
	Engine   Engine
	Database string
	Where    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no backup found for %s database '%s' in %s", e.Engine, e.Database, e.Where)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFoundError(engine Engine, database, where string) *NotFoundError {
	return &NotFoundError{Engine: engine, Database: database, Where: where}
}
