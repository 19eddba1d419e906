package bootloader

import (
	"context"
	"fmt"
	"strings"

	"passthru/internal/effects"
	"passthru/internal/errdefs"
	"passthru/internal/sysinfo"
)

// Kind selects the bootloader variant
type Kind int

const (
	KindUnknown Kind = iota
	KindGrub
	KindKernelstub
	KindSystemdBoot
)

// String returns the name used in the change log and on the command line
func (k Kind) String() string {
	switch k {
	case KindGrub:
		return "grub"
	case KindKernelstub:
		return "kernelstub"
	case KindSystemdBoot:
		return "systemd-boot"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grub":
		return KindGrub, nil
	case "kernelstub":
		return KindKernelstub, nil
	case "systemd-boot", "systemdboot":
		return KindSystemdBoot, nil
	default:
		return KindUnknown, fmt.Errorf("bootloader %q: %w", s, errdefs.ErrNotSupported)
	}
}

// KindFor maps a detected bootloader onto a backend kind
func KindFor(b sysinfo.Bootloader) (Kind, error) {
	switch b {
	case sysinfo.BootloaderGrub:
		return KindGrub, nil
	case sysinfo.BootloaderKernelstub:
		return KindKernelstub, nil
	case sysinfo.BootloaderSystemdBoot:
		return KindSystemdBoot, nil
	default:
		return KindUnknown, fmt.Errorf("bootloader %q: %w", b, errdefs.ErrNotSupported)
	}
}

// Options configures every backend kind. Zero values select defaults.
type Options struct {
	// GrubPath is the file holding the command line variable.
	GrubPath string
	// GrubKey is the variable name, matched case-sensitively.
	GrubKey string
	// GrubOutputs are the grub.cfg locations probed for grub2-mkconfig.
	GrubOutputs []string
	// ESP is the EFI system partition for systemd-boot. Empty means detect.
	ESP string
	// KernelstubBinary is the kernelstub executable.
	KernelstubBinary string
}

const (
	DefaultGrubPath         = "/etc/default/grub"
	DefaultGrubKey          = "GRUB_CMDLINE_LINUX_DEFAULT"
	DefaultKernelstubBinary = "kernelstub"
	grubMkconfigOutput      = "/boot/grub/grub.cfg"
)

// DefaultGrubOutputs are probed in order when grub2-mkconfig is used
var DefaultGrubOutputs = []string{"/boot/efi/EFI/fedora/grub.cfg", "/boot/grub2/grub.cfg"}

func (o Options) withDefaults() Options {
	if o.GrubPath == "" {
		o.GrubPath = DefaultGrubPath
	}
	if o.GrubKey == "" {
		o.GrubKey = DefaultGrubKey
	}
	if len(o.GrubOutputs) == 0 {
		o.GrubOutputs = DefaultGrubOutputs
	}
	if o.KernelstubBinary == "" {
		o.KernelstubBinary = DefaultKernelstubBinary
	}
	return o
}

// FileBackup pairs a modified file with the backup taken before the write.
type FileBackup struct {
	Path       string `json:"path" yaml:"path"`
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
}

// Result describes the outcome of an add or remove
type Result struct {
	// Changed is true if the configuration was (or in a dry run would be)
	// modified.
	Changed bool `json:"changed" yaml:"changed"`
	// Backups lists every file written together with its backup. A file
	// that did not exist before has an empty BackupPath.
	Backups []FileBackup `json:"backups,omitempty" yaml:"backups,omitempty"`
	// Added and Removed list the parameters inserted and dropped.
	Added   []string `json:"added,omitempty" yaml:"added,omitempty"`
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
	// Failed lists parameters an external tool refused.
	Failed []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Backend is a bootloader configuration handle. Kind selects the variant;
// the remaining fields hold per-kind state.
type Backend struct {
	Kind Kind

	fx   effects.Effects
	opts Options
}

// New creates a backend of the given kind
func New(kind Kind, fx effects.Effects, opts Options) *Backend {
	return &Backend{Kind: kind, fx: fx, opts: opts.withDefaults()}
}

// Name returns the backend name recorded in the change log
func (b *Backend) Name() string {
	return b.Kind.String()
}

func (b *Backend) unsupported(op string) error {
	return fmt.Errorf("%s on bootloader %s: %w", op, b.Kind, errdefs.ErrNotSupported)
}

// Parameters returns the configured kernel parameters. A missing backing
// file yields an empty list.
func (b *Backend) Parameters(ctx context.Context) ([]string, error) {
	switch b.Kind {
	case KindGrub:
		return b.grubParameters()
	case KindKernelstub:
		return b.kernelstubParameters(ctx)
	case KindSystemdBoot:
		return b.systemdBootParameters()
	default:
		return nil, b.unsupported("read parameters")
	}
}

// AddParameters reconciles params into the configuration. A dry run reports
// the intended effect and writes nothing.
func (b *Backend) AddParameters(ctx context.Context, params []string, dryRun bool) (Result, error) {
	switch b.Kind {
	case KindGrub:
		return b.grubUpdate(params, true, dryRun)
	case KindKernelstub:
		return b.kernelstubUpdate(ctx, params, true, dryRun)
	case KindSystemdBoot:
		return b.systemdBootUpdate(params, true, dryRun)
	default:
		return Result{}, b.unsupported("add parameters")
	}
}

// RemoveParameters drops params from the configuration. A dry run reports the
// intended effect and writes nothing.
func (b *Backend) RemoveParameters(ctx context.Context, params []string, dryRun bool) (Result, error) {
	switch b.Kind {
	case KindGrub:
		return b.grubUpdate(params, false, dryRun)
	case KindKernelstub:
		return b.kernelstubUpdate(ctx, params, false, dryRun)
	case KindSystemdBoot:
		return b.systemdBootUpdate(params, false, dryRun)
	default:
		return Result{}, b.unsupported("remove parameters")
	}
}

// CreateBackup backs up every file the backend edits and returns the backup
// locations.
func (b *Backend) CreateBackup() ([]string, error) {
	switch b.Kind {
	case KindGrub:
		return b.grubBackup()
	case KindKernelstub:
		return nil, nil
	case KindSystemdBoot:
		return b.systemdBootBackup()
	default:
		return nil, b.unsupported("backup")
	}
}

// Activate regenerates the boot configuration so that written parameters
// take effect on the next boot.
func (b *Backend) Activate(ctx context.Context, dryRun bool) error {
	switch b.Kind {
	case KindGrub:
		return b.grubActivate(ctx, dryRun)
	case KindKernelstub:
		return b.kernelstubActivate()
	case KindSystemdBoot:
		return b.systemdBootActivate()
	default:
		return b.unsupported("activate")
	}
}
