package effects

import (
	"context"
	"io/fs"
	"time"
)

// Effects is every interaction passthru has with the host: configuration
// files, sysfs control files and external tools. Components receive an
// Effects value instead of touching the os package directly so they can be
// exercised against an in-memory host in tests.
type Effects interface {
	// ReadFile returns the whole content of path. A missing file yields an
	// error matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the content of path. Existing permissions are kept;
	// perm only applies to newly created files.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// FileMode returns the permission bits of an existing file.
	FileMode(path string) (fs.FileMode, error)

	// WriteControl writes value to an existing kernel control file (sysfs).
	// The file is opened write-only and never created.
	WriteControl(path string, value string) error

	// Exists reports whether path exists. Errors other than "does not exist"
	// are returned so that unreadable locations are not mistaken for absent ones.
	Exists(path string) (bool, error)

	// ReadDir returns the sorted entry names of a directory.
	ReadDir(path string) ([]string, error)

	// Readlink returns the destination of a symbolic link.
	Readlink(path string) (string, error)

	// Rename moves oldPath over newPath, replacing it.
	Rename(oldPath, newPath string) error

	// Remove deletes a file.
	Remove(path string) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error

	// LookPath resolves an executable name. A missing tool yields an error
	// matching errdefs.ErrNotFound.
	LookPath(name string) (string, error)

	// Run executes a command, blocks until it exits and returns its combined
	// output. A non-zero exit yields *errdefs.CommandError; a missing
	// executable yields an error matching errdefs.ErrNotFound.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the caller, used to let the kernel settle between sysfs writes.
	Sleep(d time.Duration)
}
