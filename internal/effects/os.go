package effects

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"passthru/internal/errdefs"
	"passthru/pkg/logging"
)

const osSubsystem = "Effects"

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// execLookPath is a variable to allow mocking in tests
var execLookPath = exec.LookPath

// OS implements Effects against the real host.
type OS struct{}

// NewOS returns the host implementation of Effects
func NewOS() *OS {
	return &OS{}
}

// ReadFile reads the whole file
func (o *OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data through a temporary file in the same directory and
// renames it into place, so readers never observe a half-written file.
func (o *OS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// FileMode returns the permission bits of path
func (o *OS) FileMode(path string) (fs.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Mode().Perm(), nil
}

// WriteControl writes a single value to a kernel control file
func (o *OS) WriteControl(path string, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("control file %s: %w", path, errdefs.ErrNotFound)
		}
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("failed to write %q to %s: %w", value, path, err)
	}
	logging.Debug(osSubsystem, "Wrote %q to %s", value, path)
	return nil
}

// Exists reports whether path exists
func (o *OS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadDir lists directory entry names in sorted order
func (o *OS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Readlink returns the target of a symlink
func (o *OS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// Rename moves a file
func (o *OS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Remove deletes a file
func (o *OS) Remove(path string) error {
	return os.Remove(path)
}

// MkdirAll creates a directory tree
func (o *OS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// LookPath resolves an executable from PATH or an absolute location
func (o *OS) LookPath(name string) (string, error) {
	p, err := execLookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return p, nil
}

// Run executes a command and waits for it to exit
func (o *OS) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	logging.Debug(osSubsystem, "Executing: %s %s", name, strings.Join(args, " "))

	cmd := execCommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, &errdefs.CommandError{
			Name:     name,
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Output:   string(output),
		}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return output, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return output, fmt.Errorf("failed to execute %s: %w", name, err)
}

// Now returns the wall clock time
func (o *OS) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d
func (o *OS) Sleep(d time.Duration) {
	time.Sleep(d)
}
