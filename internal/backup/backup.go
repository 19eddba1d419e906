// Package backup creates and restores timestamped copies of configuration
// files before they are modified.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"passthru/internal/effects"
	"passthru/internal/errdefs"
	"passthru/pkg/logging"
)

const (
	subsystem = "Backup"

	// TimestampFormat is the layout appended to backup file names.
	TimestampFormat = "20060102_150405"

	// Suffix separates the original name from the timestamp.
	Suffix = ".backup_"
)

// Name returns the backup location for path at the given timestamp,
// without collision handling.
func Name(path string, stamp string) string {
	return filepath.Join(filepath.Dir(path), filepath.Base(path)+Suffix+stamp)
}

// Create copies path to <dir>/<name>.backup_YYYYmmdd_HHMMSS and returns the
// backup location. A missing source is not an error: it returns an empty
// location meaning there was nothing to back up. A second backup within the
// same second gets a numeric suffix instead of overwriting the first. The
// backup keeps the permissions of the source so a restore does not widen them.
func Create(fx effects.Effects, path string) (string, error) {
	data, err := fx.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug(subsystem, "No backup needed for %s: file does not exist", path)
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	perm, err := fx.FileMode(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s for backup: %w", path, err)
	}

	base := Name(path, fx.Now().Format(TimestampFormat))
	dest := base
	for n := 1; ; n++ {
		exists, err := fx.Exists(dest)
		if err != nil {
			return "", fmt.Errorf("failed to check backup location %s: %w", dest, err)
		}
		if !exists {
			break
		}
		dest = fmt.Sprintf("%s_%d", base, n)
	}

	if err := fx.WriteFile(dest, data, perm); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", dest, err)
	}

	logging.Info(subsystem, "Backed up %s to %s", path, dest)
	return dest, nil
}

// Restore moves backupPath over path. A missing backup yields an error
// matching errdefs.ErrNotFound and leaves path untouched.
func Restore(fx effects.Effects, backupPath, path string) error {
	exists, err := fx.Exists(backupPath)
	if err != nil {
		return fmt.Errorf("failed to check backup %s: %w", backupPath, err)
	}
	if !exists {
		return fmt.Errorf("backup %s: %w", backupPath, errdefs.ErrNotFound)
	}

	if err := fx.Rename(backupPath, path); err != nil {
		return fmt.Errorf("failed to restore %s from %s: %w", path, backupPath, err)
	}

	logging.Info(subsystem, "Restored %s from %s", path, backupPath)
	return nil
}
