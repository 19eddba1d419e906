package bootloader

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"passthru/internal/backup"
	"passthru/internal/errdefs"
	"passthru/internal/kparams"
	"passthru/internal/sysinfo"
	"passthru/pkg/logging"
)

const systemdBootSubsystem = "SystemdBoot"

// entriesDir returns <esp>/loader/entries, or "" if no ESP carries one
func (b *Backend) entriesDir() string {
	if b.opts.ESP != "" {
		return path.Join(b.opts.ESP, "loader/entries")
	}
	for _, esp := range sysinfo.ESPCandidates {
		dir := path.Join(esp, "loader/entries")
		if ok, _ := b.fx.Exists(dir); ok {
			return dir
		}
	}
	return ""
}

// entries lists the loader entry files in sorted order
func (b *Backend) entries() ([]string, error) {
	dir := b.entriesDir()
	if dir == "" {
		return nil, nil
	}
	if ok, err := b.fx.Exists(dir); err != nil || !ok {
		return nil, err
	}

	names, err := b.fx.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, name := range names {
		if strings.HasSuffix(name, ".conf") {
			files = append(files, path.Join(dir, name))
		}
	}
	return files, nil
}

func (b *Backend) requireEntries() ([]string, error) {
	files, err := b.entries()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		dir := b.entriesDir()
		if dir == "" {
			dir = "any EFI system partition"
		}
		return nil, fmt.Errorf("no systemd-boot loader entries in %s: %w", dir, errdefs.ErrNotSupported)
	}
	return files, nil
}

// isOptionsLine reports whether line is an "options" key of a loader entry
func isOptionsLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(trimmed, "options")
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// entryOptions collects the tokens of every options line of an entry
func entryOptions(content string) []string {
	var tokens []string
	for _, line := range strings.Split(content, "\n") {
		if rest, ok := isOptionsLine(line); ok {
			tokens = append(tokens, strings.Fields(rest)...)
		}
	}
	return tokens
}

// rewriteEntry writes serialized into the first options line, drops any
// further options lines and appends one if the entry has none.
func rewriteEntry(content, serialized string) string {
	lines := strings.SplitAfter(content, "\n")
	var out strings.Builder
	replaced := false
	for _, line := range lines {
		if _, ok := isOptionsLine(line); ok {
			if replaced {
				continue
			}
			replaced = true
			out.WriteString("options " + serialized)
			if strings.HasSuffix(line, "\n") {
				out.WriteString("\n")
			}
			continue
		}
		out.WriteString(line)
	}

	if !replaced {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteString("\n")
		}
		out.WriteString("options " + serialized + "\n")
	}
	return out.String()
}

// systemdBootParameters returns the options of the first loader entry
func (b *Backend) systemdBootParameters() ([]string, error) {
	files, err := b.entries()
	if err != nil || len(files) == 0 {
		return nil, err
	}
	data, err := b.fx.ReadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", files[0], err)
	}
	return entryOptions(string(data)), nil
}

// systemdBootUpdate edits every loader entry uniformly. On error the result
// still lists the entries already written so they can be recorded.
func (b *Backend) systemdBootUpdate(params []string, add bool, dryRun bool) (Result, error) {
	files, err := b.requireEntries()
	if err != nil {
		return Result{}, err
	}

	var res Result
	added := make(map[string]bool)
	removed := make(map[string]bool)

	for _, file := range files {
		data, err := b.fx.ReadFile(file)
		if err != nil {
			return res, fmt.Errorf("failed to read %s: %w", file, err)
		}
		content := string(data)

		var diff kparams.Diff
		if add {
			diff = kparams.Add(entryOptions(content), params)
		} else {
			diff = kparams.Remove(entryOptions(content), params)
		}
		if !diff.Changed {
			logging.Debug(systemdBootSubsystem, "%s already up to date", file)
			continue
		}

		res.Changed = true
		for _, p := range diff.Added {
			added[p] = true
		}
		for _, p := range diff.Removed {
			removed[p] = true
		}

		if dryRun {
			logging.Info(systemdBootSubsystem, "[DRY RUN] Would set options of %s to %q", file, diff.String())
			continue
		}

		backupPath, err := backup.Create(b.fx, file)
		if err != nil {
			return res, err
		}
		if err := b.fx.WriteFile(file, []byte(rewriteEntry(content, diff.String())), 0o644); err != nil {
			return res, fmt.Errorf("failed to write %s: %w", file, err)
		}
		res.Backups = append(res.Backups, FileBackup{Path: file, BackupPath: backupPath})
		logging.Info(systemdBootSubsystem, "Updated options of %s", file)
	}

	res.Added = sortedKeys(added)
	res.Removed = sortedKeys(removed)
	return res, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Backend) systemdBootBackup() ([]string, error) {
	files, err := b.requireEntries()
	if err != nil {
		return nil, err
	}
	var backups []string
	for _, file := range files {
		backupPath, err := backup.Create(b.fx, file)
		if err != nil {
			return backups, err
		}
		if backupPath != "" {
			backups = append(backups, backupPath)
		}
	}
	return backups, nil
}

func (b *Backend) systemdBootActivate() error {
	logging.Info(systemdBootSubsystem, "systemd-boot reads loader entries at boot, nothing to regenerate")
	return nil
}
