package bootloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"passthru/internal/backup"
	"passthru/internal/errdefs"
	"passthru/internal/kparams"
	"passthru/pkg/logging"
)

const grubSubsystem = "Grub"

// grubFallbackMarker precedes an assignment appended because the previous
// one could not be parsed. A marked line is rewritten in place afterwards.
const grubFallbackMarker = "# passthru: replaces the unparsable assignment above"

// grubLine locates the payload of the command line variable inside the
// defaults file.
type grubLine struct {
	found   bool
	line    int // line start offset
	start   int // payload start offset
	end     int // payload end offset
	quote   byte
	payload string
}

func grubPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?m)^[ \t]*%s[ \t]*=[ \t]*(?:"([^"\n]*)"|'([^'\n]*)')`, regexp.QuoteMeta(key)))
}

// findGrubLine returns the last assignment of key, matching the shell
// semantics of the defaults file where the last assignment wins.
func findGrubLine(content, key string) grubLine {
	matches := grubPattern(key).FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return grubLine{}
	}
	m := matches[len(matches)-1]
	line := grubLine{found: true, line: m[0], quote: '"', start: m[2], end: m[3]}
	if m[2] < 0 {
		line.quote = '\''
		line.start, line.end = m[4], m[5]
	}
	line.payload = content[line.start:line.end]
	return line
}

// marked reports whether the located line was appended as a fallback
func (l grubLine) marked(content string) bool {
	return l.found && strings.HasSuffix(content[:l.line], grubFallbackMarker+"\n")
}

// readGrub returns the file content and whether the file exists
func (b *Backend) readGrub() (string, bool, error) {
	data, err := b.fx.ReadFile(b.opts.GrubPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", b.opts.GrubPath, err)
	}
	return string(data), true, nil
}

// grubTokens splits the payload. ok is false when the payload could not be
// tokenized and the caller should fall back to appending a fresh line.
func grubTokens(line grubLine) ([]string, bool) {
	if !line.found {
		return nil, false
	}
	tokens, err := kparams.Split(line.payload)
	if err != nil {
		logging.Warn(grubSubsystem, "Cannot tokenize command line %q: %v", line.payload, err)
		return strings.Fields(line.payload), false
	}
	return tokens, true
}

func (b *Backend) grubParameters() ([]string, error) {
	content, exists, err := b.readGrub()
	if err != nil || !exists {
		return nil, err
	}
	tokens, _ := grubTokens(findGrubLine(content, b.opts.GrubKey))
	return tokens, nil
}

func (b *Backend) grubUpdate(params []string, add bool, dryRun bool) (Result, error) {
	path := b.opts.GrubPath
	content, exists, err := b.readGrub()
	if err != nil {
		return Result{}, err
	}

	line := findGrubLine(content, b.opts.GrubKey)
	current, inline := grubTokens(line)

	var diff kparams.Diff
	if add {
		diff = kparams.Add(current, params)
	} else {
		diff = kparams.Remove(current, params)
	}

	res := Result{Changed: diff.Changed, Added: diff.Added, Removed: diff.Removed}
	if !diff.Changed {
		logging.Info(grubSubsystem, "%s already up to date in %s", b.opts.GrubKey, path)
		return res, nil
	}

	serialized := diff.String()
	logging.Info(grubSubsystem, "New %s: %q", b.opts.GrubKey, serialized)

	if dryRun {
		logging.Info(grubSubsystem, "[DRY RUN] Would modify %s", path)
		return res, nil
	}
	if !exists {
		return Result{}, fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
	}

	updated, err := rewriteGrub(content, line, inline, b.opts.GrubKey, serialized)
	if err != nil {
		return Result{}, err
	}

	backupPath, err := backup.Create(b.fx, path)
	if err != nil {
		return Result{}, err
	}
	if err := b.fx.WriteFile(path, []byte(updated), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	res.Backups = []FileBackup{{Path: path, BackupPath: backupPath}}
	logging.Info(grubSubsystem, "Successfully updated %s", path)
	return res, nil
}

// rewriteGrub replaces only the quoted payload of the located line. Without a
// usable line, a new assignment is appended.
func rewriteGrub(content string, line grubLine, inline bool, key, serialized string) (string, error) {
	if (inline || line.marked(content)) && line.found && !strings.ContainsRune(serialized, rune(line.quote)) {
		return content[:line.start] + serialized + content[line.end:], nil
	}

	quote := `"`
	if strings.Contains(serialized, `"`) {
		if strings.Contains(serialized, `'`) {
			return "", fmt.Errorf("command line %q mixes both quote characters: %w", serialized, errdefs.ErrInvalidData)
		}
		quote = `'`
	}

	logging.Warn(grubSubsystem, "%s line not found or malformed, appending a new one", key)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if line.found {
		content += grubFallbackMarker + "\n"
	}
	return content + key + "=" + quote + serialized + quote + "\n", nil
}

func (b *Backend) grubBackup() ([]string, error) {
	backupPath, err := backup.Create(b.fx, b.opts.GrubPath)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		return nil, nil
	}
	return []string{backupPath}, nil
}

// grubCommand picks the regeneration command available on the host
func (b *Backend) grubCommand() (string, []string, error) {
	if _, err := b.fx.LookPath("update-grub"); err == nil {
		return "update-grub", nil, nil
	}

	if _, err := b.fx.LookPath("grub2-mkconfig"); err == nil {
		for _, out := range b.opts.GrubOutputs {
			if ok, _ := b.fx.Exists(out); ok {
				return "grub2-mkconfig", []string{"-o", out}, nil
			}
		}
		return "", nil, fmt.Errorf("grub2-mkconfig found but none of %s exists: %w",
			strings.Join(b.opts.GrubOutputs, ", "), errdefs.ErrNotFound)
	}

	if _, err := b.fx.LookPath("grub-mkconfig"); err == nil {
		return "grub-mkconfig", []string{"-o", grubMkconfigOutput}, nil
	}

	return "", nil, fmt.Errorf("GRUB update command (update-grub, grub2-mkconfig, grub-mkconfig): %w", errdefs.ErrNotFound)
}

func (b *Backend) grubActivate(ctx context.Context, dryRun bool) error {
	name, args, err := b.grubCommand()
	if err != nil {
		logging.Warn(grubSubsystem, "Could not find a GRUB update command")
		return err
	}

	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	if dryRun {
		logging.Info(grubSubsystem, "[DRY RUN] Would execute: %s", cmdline)
		return nil
	}

	logging.Info(grubSubsystem, "Executing: %s", cmdline)
	if _, err := b.fx.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to regenerate GRUB configuration: %w", err)
	}
	logging.Info(grubSubsystem, "GRUB configuration updated successfully")
	return nil
}
