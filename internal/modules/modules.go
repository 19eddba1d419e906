package modules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"passthru/internal/backup"
	"passthru/internal/effects"
	"passthru/internal/errdefs"
	"passthru/internal/kparams"
	"passthru/internal/sysinfo"
	"passthru/pkg/logging"
)

const subsystem = "Modules"

const (
	DefaultModprobeDir    = "/etc/modprobe.d"
	DefaultModulesLoadDir = "/etc/modules-load.d"

	VFIOConfName = "vfio.conf"
	LoadConfName = "vfio-pci-load.conf"

	// ModuleName is the driver the options line configures
	ModuleName = "vfio-pci"

	filePerm = 0o644
)

// SoftdepDrivers are made to wait for vfio-pci so it can claim a GPU first
var SoftdepDrivers = []string{"drm", "amdgpu", "nouveau", "radeon", "nvidia", "i915"}

// EarlyModules are listed in modules-load.d. vfio_virqfd only exists as a
// separate module on older kernels and is ignored elsewhere.
var EarlyModules = []string{"vfio", "vfio_iommu_type1", "vfio_pci", "vfio_virqfd"}

// Options locates the configuration directories
type Options struct {
	ModprobeDir    string
	ModulesLoadDir string
}

func (o Options) withDefaults() Options {
	if o.ModprobeDir == "" {
		o.ModprobeDir = DefaultModprobeDir
	}
	if o.ModulesLoadDir == "" {
		o.ModulesLoadDir = DefaultModulesLoadDir
	}
	return o
}

// FileChange is one configuration file written, or that would be written
type FileChange struct {
	Path string `json:"path" yaml:"path"`
	// BackupPath is empty when the file did not exist before.
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Created    bool   `json:"created" yaml:"created"`
}

// Result of Configure
type Result struct {
	Changed bool         `json:"changed" yaml:"changed"`
	IDs     []string     `json:"ids" yaml:"ids"`
	Files   []FileChange `json:"files,omitempty" yaml:"files,omitempty"`
}

// Configurator edits module configuration on a host
type Configurator struct {
	fx   effects.Effects
	opts Options
}

// New creates a Configurator
func New(fx effects.Effects, opts Options) *Configurator {
	return &Configurator{fx: fx, opts: opts.withDefaults()}
}

// VFIOConfPath returns the location of the modprobe configuration
func (c *Configurator) VFIOConfPath() string {
	return filepath.Join(c.opts.ModprobeDir, VFIOConfName)
}

// LoadConfPath returns the location of the modules-load configuration
func (c *Configurator) LoadConfPath() string {
	return filepath.Join(c.opts.ModulesLoadDir, LoadConfName)
}

// Configure makes vfio-pci claim the given vendor:device ids at boot
func (c *Configurator) Configure(ctx context.Context, ids []string, dryRun bool) (Result, error) {
	normalized, err := kparams.NormalizeIDs(ids)
	if err != nil {
		return Result{}, err
	}
	result := Result{IDs: normalized}

	files := []struct {
		path   string
		render func(current string) string
	}{
		{path: c.VFIOConfPath(), render: func(current string) string { return RenderVFIOConf(current, normalized) }},
		{path: c.LoadConfPath(), render: func(string) string { return RenderLoadConf() }},
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		change, changed, err := c.ensure(f.path, f.render, dryRun)
		if err != nil {
			return result, err
		}
		if changed {
			result.Changed = true
			result.Files = append(result.Files, change)
		}
	}
	return result, nil
}

func (c *Configurator) ensure(path string, render func(string) string, dryRun bool) (FileChange, bool, error) {
	current, existed, err := c.read(path)
	if err != nil {
		return FileChange{}, false, err
	}

	desired := render(current)
	if existed && desired == current {
		logging.Info(subsystem, "%s is already up to date", path)
		return FileChange{}, false, nil
	}

	change := FileChange{Path: path, Created: !existed}
	if dryRun {
		logging.Info(subsystem, "[DRY RUN] Would write %s:\n%s", path, desired)
		return change, true, nil
	}

	if err := c.fx.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return FileChange{}, false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	backupPath, err := backup.Create(c.fx, path)
	if err != nil {
		return FileChange{}, false, err
	}
	change.BackupPath = backupPath

	if err := c.fx.WriteFile(path, []byte(desired), filePerm); err != nil {
		return FileChange{}, false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Info(subsystem, "Updated %s", path)
	return change, true, nil
}

func (c *Configurator) read(path string) (string, bool, error) {
	exists, err := c.fx.Exists(path)
	if err != nil {
		return "", false, err
	}
	if !exists {
		return "", false, nil
	}
	data, err := c.fx.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), true, nil
}

// OptionsLine is the vfio-pci options line for already normalized ids
func OptionsLine(ids []string) string {
	return fmt.Sprintf("options %s ids=%s disable_vga=1 disable_idle_d3=1", ModuleName, strings.Join(ids, ","))
}

// RenderVFIOConf returns current with exactly one vfio-pci options line
// (the first one is replaced, later ones are commented out) and every
// softdep present. Comments and unrelated lines are kept in place.
func RenderVFIOConf(current string, ids []string) string {
	options := OptionsLine(ids)
	var out []string
	optionsFound := false
	softdeps := make(map[string]bool)

	for _, line := range lines(current) {
		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "" || strings.HasPrefix(stripped, "#"):
			out = append(out, line)
		case strings.HasPrefix(stripped, "options "+ModuleName):
			if optionsFound {
				logging.Debug(subsystem, "Commenting out duplicate options line: %s", stripped)
				out = append(out, "# "+line)
				continue
			}
			optionsFound = true
			out = append(out, options)
		case strings.HasPrefix(stripped, "softdep ") && strings.Contains(stripped, " pre: "+ModuleName):
			softdeps[stripped] = true
			out = append(out, line)
		default:
			out = append(out, line)
		}
	}

	if !optionsFound {
		out = append(out, options)
	}
	for _, driver := range SoftdepDrivers {
		line := fmt.Sprintf("softdep %s pre: %s", driver, ModuleName)
		if !softdeps[line] {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n") + "\n"
}

// RenderLoadConf returns the modules-load.d content
func RenderLoadConf() string {
	return strings.Join(EarlyModules, "\n") + "\n"
}

func lines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// UpdateInitramfs regenerates the initramfs with the tool of the given family
func (c *Configurator) UpdateInitramfs(ctx context.Context, family sysinfo.InitramfsFamily, dryRun bool) error {
	cmd, err := InitramfsCommand(family)
	if err != nil {
		return err
	}

	cmdline := strings.Join(cmd, " ")
	if dryRun {
		logging.Info(subsystem, "[DRY RUN] Would execute: %s", cmdline)
		return nil
	}

	logging.Info(subsystem, "Updating initramfs: %s", cmdline)
	if _, err := c.fx.Run(ctx, cmd[0], cmd[1:]...); err != nil {
		return fmt.Errorf("failed to update initramfs: %w", err)
	}
	logging.Info(subsystem, "Initramfs updated successfully")
	return nil
}

// InitramfsCommand returns the regeneration command for a family
func InitramfsCommand(family sysinfo.InitramfsFamily) ([]string, error) {
	switch family {
	case sysinfo.InitramfsMkinitcpio:
		return []string{"mkinitcpio", "-P"}, nil
	case sysinfo.InitramfsDracut:
		return []string{"dracut", "--force"}, nil
	case sysinfo.InitramfsInitramfsTools:
		return []string{"update-initramfs", "-u", "-k", "all"}, nil
	case sysinfo.InitramfsBooster:
		return []string{"booster", "build"}, nil
	default:
		return nil, fmt.Errorf("initramfs family %q: %w", family, errdefs.ErrNotSupported)
	}
}
