// Package editor provides backup, line editing and encoding tools for sketch documents.
package editor

import (
	"fmt"
	"io"
	"os"

	"sketch-repair/internal/logger"
)

// DefaultSuffix is appended to the document path to form the backup path.
const DefaultSuffix = ".backup"

// BackupManager writes and restores the single sibling backup of a document.
// A new backup overwrites the previous one; backups are never cleaned up.
type BackupManager struct {
	suffix string
	log    logger.Logger
}

// NewBackupManager creates a new BackupManager. An empty suffix means DefaultSuffix.
func NewBackupManager(suffix string, log logger.Logger) *BackupManager {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &BackupManager{suffix: suffix, log: log}
}

// BackupPath returns the backup location for path
func (m *BackupManager) BackupPath(path string) string {
	return path + m.suffix
}

// CreateBackup copies the file at path to its backup location
// Returns the path to the backup file
func (m *BackupManager) CreateBackup(path string) (string, error) {
	m.log.Debug("creating backup", logger.String("path", path))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", path)
	}

	backupPath := m.BackupPath(path)
	if err := copyFile(path, backupPath); err != nil {
		m.log.Error("failed to copy file", err)
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	m.log.Info("backup created", logger.String("backupPath", backupPath))
	return backupPath, nil
}

// WriteBackup stores data as the backup of path. The pipeline uses this with the
// bytes it loaded so the backup matches exactly what was repaired.
func (m *BackupManager) WriteBackup(path string, data []byte) (string, error) {
	backupPath := m.BackupPath(path)
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(backupPath, data, mode); err != nil {
		m.log.Error("failed to write backup", err, logger.String("backupPath", backupPath))
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	m.log.Info("backup created", logger.String("backupPath", backupPath))
	return backupPath, nil
}

// HasBackup reports whether a backup exists for path
func (m *BackupManager) HasBackup(path string) bool {
	_, err := os.Stat(m.BackupPath(path))
	return err == nil
}

// Restore restores a file from its backup
func (m *BackupManager) Restore(path string) error {
	backupPath := m.BackupPath(path)
	m.log.Debug("restoring from backup",
		logger.String("backupPath", backupPath),
		logger.String("originalPath", path))

	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file does not exist: %s", backupPath)
	}

	if err := copyFile(backupPath, path); err != nil {
		m.log.Error("failed to restore backup", err)
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	m.log.Info("file restored from backup", logger.String("path", path))
	return nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	if err := destFile.Sync(); err != nil {
		return err
	}

	sourceInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, sourceInfo.Mode())
}
