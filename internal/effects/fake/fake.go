// Package fake provides an in-memory effects.Effects implementation.
//
// Host keeps files, directories, symlinks and control files in maps and
// records every mutation and command so tests can assert on exactly what a
// component did to the host, including that a dry run did nothing.
package fake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"passthru/internal/errdefs"
)

// CommandFunc simulates an external tool. Returning a non-nil error makes Run
// fail with it; use Exit to simulate a non-zero exit status.
type CommandFunc func(args []string) ([]byte, error)

// Op is one recorded mutation.
type Op struct {
	Kind  string // write, control, rename, remove, mkdir
	Path  string
	Value string
}

// Host is an in-memory host
type Host struct {
	mu       sync.Mutex
	files    map[string][]byte
	perms    map[string]fs.FileMode
	dirs     map[string]bool
	links    map[string]string
	controls map[string][]string
	failing  map[string]error
	tools    map[string]string
	commands map[string]CommandFunc

	// Clock is returned by Now. Each call advances it by ClockStep.
	Clock     time.Time
	ClockStep time.Duration

	Ops   []Op
	Runs  [][]string
	Slept time.Duration
}

// NewHost returns an empty host with a fixed clock
func NewHost() *Host {
	return &Host{
		files:    make(map[string][]byte),
		perms:    make(map[string]fs.FileMode),
		dirs:     map[string]bool{"/": true},
		links:    make(map[string]string),
		controls: make(map[string][]string),
		failing:  make(map[string]error),
		tools:    make(map[string]string),
		commands: make(map[string]CommandFunc),
		Clock:    time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC),
	}
}

// Exit builds the error a tool returns when it exits with code.
func Exit(name string, args []string, code int, output string) error {
	return &errdefs.CommandError{Name: name, Args: args, ExitCode: code, Output: output}
}

// AddFile seeds a regular file and its parent directories
func (h *Host) AddFile(p string, content string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	h.addParents(p)
	h.files[p] = []byte(content)
	return h
}

// SetPerm sets the permission bits of a seeded file
func (h *Host) SetPerm(p string, perm fs.FileMode) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.perms[path.Clean(p)] = perm
	return h
}

// AddDir seeds a directory and its parents
func (h *Host) AddDir(p string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	h.addParents(p)
	h.dirs[p] = true
	return h
}

// AddLink seeds a symbolic link
func (h *Host) AddLink(p, target string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	h.addParents(p)
	h.links[p] = target
	return h
}

// AddControl seeds a write-only kernel control file
func (h *Host) AddControl(p string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	h.addParents(p)
	h.controls[p] = nil
	return h
}

// AddTool makes name resolvable by LookPath and runnable by Run. A nil fn
// succeeds with no output.
func (h *Host) AddTool(name string, fn CommandFunc) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		fn = func([]string) ([]byte, error) { return nil, nil }
	}
	resolved := name
	if !strings.HasPrefix(name, "/") {
		resolved = "/usr/bin/" + name
	}
	h.tools[name] = resolved
	h.commands[name] = fn
	return h
}

// FailWrites makes every mutation of p fail with err
func (h *Host) FailWrites(p string, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing[path.Clean(p)] = err
	return h
}

// FailValue makes writes of value to the control file p fail with err
func (h *Host) FailValue(p, value string, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing[valueKey(path.Clean(p), value)] = err
	return h
}

func valueKey(p, value string) string {
	return "value:" + p + "\x00" + value
}

// File returns the current content of a regular file
func (h *Host) File(p string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[path.Clean(p)]
	return string(data), ok
}

// Perm returns the recorded permission bits of a file
func (h *Host) Perm(p string) fs.FileMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perms[path.Clean(p)]
}

// ControlWrites returns every value written to a control file, in order
func (h *Host) ControlWrites(p string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.controls[path.Clean(p)]...)
}

// Files returns the sorted paths of every regular file
func (h *Host) Files() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for p := range h.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Mutations returns the number of recorded mutations
func (h *Host) Mutations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Ops)
}

func (h *Host) addParents(p string) {
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		h.dirs[dir] = true
		if dir == "/" || dir == "." {
			return
		}
	}
}

func (h *Host) exists(p string) bool {
	if _, ok := h.files[p]; ok {
		return true
	}
	if _, ok := h.controls[p]; ok {
		return true
	}
	if _, ok := h.links[p]; ok {
		return true
	}
	return h.dirs[p]
}

func notExist(op, p string) error {
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

// ReadFile implements effects.Effects
func (h *Host) ReadFile(p string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if err, ok := h.failing["read:"+p]; ok {
		return nil, err
	}
	data, ok := h.files[p]
	if !ok {
		return nil, notExist("open", p)
	}
	return append([]byte(nil), data...), nil
}

// FailReads makes ReadFile of p fail with err
func (h *Host) FailReads(p string, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing["read:"+path.Clean(p)] = err
	return h
}

// WriteFile implements effects.Effects
func (h *Host) WriteFile(p string, data []byte, perm fs.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if err, ok := h.failing[p]; ok {
		return err
	}
	if !h.dirs[path.Dir(p)] {
		return notExist("open", p)
	}
	if _, ok := h.files[p]; !ok {
		h.perms[p] = perm
	}
	h.files[p] = append([]byte(nil), data...)
	h.Ops = append(h.Ops, Op{Kind: "write", Path: p, Value: string(data)})
	return nil
}

// FileMode implements effects.Effects. Seeded files without explicit
// permissions report 0644.
func (h *Host) FileMode(p string) (fs.FileMode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if _, ok := h.files[p]; !ok {
		return 0, notExist("stat", p)
	}
	if perm, ok := h.perms[p]; ok {
		return perm, nil
	}
	return 0o644, nil
}

// WriteControl implements effects.Effects
func (h *Host) WriteControl(p string, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if err, ok := h.failing[p]; ok {
		return err
	}
	if err, ok := h.failing[valueKey(p, value)]; ok {
		return err
	}
	if _, ok := h.controls[p]; !ok {
		return fmt.Errorf("control file %s: %w", p, errdefs.ErrNotFound)
	}
	h.controls[p] = append(h.controls[p], value)
	h.Ops = append(h.Ops, Op{Kind: "control", Path: p, Value: value})
	return nil
}

// Exists implements effects.Effects
func (h *Host) Exists(p string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exists(path.Clean(p)), nil
}

// ReadDir implements effects.Effects
func (h *Host) ReadDir(p string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if !h.dirs[p] {
		return nil, notExist("open", p)
	}

	seen := make(map[string]bool)
	collect := func(candidate string) {
		if candidate != p && path.Dir(candidate) == p {
			seen[path.Base(candidate)] = true
		}
	}
	for f := range h.files {
		collect(f)
	}
	for d := range h.dirs {
		collect(d)
	}
	for l := range h.links {
		collect(l)
	}
	for c := range h.controls {
		collect(c)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Readlink implements effects.Effects
func (h *Host) Readlink(p string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target, ok := h.links[path.Clean(p)]
	if !ok {
		return "", notExist("readlink", p)
	}
	return target, nil
}

// Rename implements effects.Effects
func (h *Host) Rename(oldPath, newPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	oldPath, newPath = path.Clean(oldPath), path.Clean(newPath)
	if err, ok := h.failing[newPath]; ok {
		return err
	}
	data, ok := h.files[oldPath]
	if !ok {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrNotExist}
	}
	if perm, ok := h.perms[oldPath]; ok {
		h.perms[newPath] = perm
	} else {
		delete(h.perms, newPath)
	}
	h.files[newPath] = data
	delete(h.files, oldPath)
	delete(h.perms, oldPath)
	h.Ops = append(h.Ops, Op{Kind: "rename", Path: newPath, Value: oldPath})
	return nil
}

// Remove implements effects.Effects
func (h *Host) Remove(p string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if err, ok := h.failing[p]; ok {
		return err
	}
	if _, ok := h.files[p]; !ok {
		return notExist("remove", p)
	}
	delete(h.files, p)
	delete(h.perms, p)
	h.Ops = append(h.Ops, Op{Kind: "remove", Path: p})
	return nil
}

// MkdirAll implements effects.Effects
func (h *Host) MkdirAll(p string, perm fs.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p = path.Clean(p)
	if h.dirs[p] {
		return nil
	}
	h.addParents(p)
	h.dirs[p] = true
	h.Ops = append(h.Ops, Op{Kind: "mkdir", Path: p})
	return nil
}

// LookPath implements effects.Effects
func (h *Host) LookPath(name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resolved, ok := h.tools[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return resolved, nil
}

// Run implements effects.Effects
func (h *Host) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	h.mu.Lock()
	h.Runs = append(h.Runs, append([]string{name}, args...))
	fn, ok := h.commands[name]
	h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return fn(args)
}

// Now implements effects.Effects
func (h *Host) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.Clock
	h.Clock = h.Clock.Add(h.ClockStep)
	return now
}

// Sleep implements effects.Effects without blocking
func (h *Host) Sleep(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Slept += d
}
