package binder

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"passthru/internal/effects"
	"passthru/internal/errdefs"
	"passthru/internal/pci"
	"passthru/pkg/logging"
)

const subsystem = "Binder"

const (
	// DefaultTargetDriver is the passthrough driver devices are bound to
	DefaultTargetDriver = "vfio-pci"
	// DefaultSettle is the pause after an unbind before the next write
	DefaultSettle = 100 * time.Millisecond

	// clearOverride empties driver_override; the kernel strips the newline
	clearOverride = "\n"
)

// Config configures a Binder. Zero values select defaults.
type Config struct {
	TargetDriver string
	SysfsRoot    string
	Settle       time.Duration
}

// StepKind names one sysfs write of a rebinding sequence
type StepKind string

const (
	StepUnbind        StepKind = "unbind"
	StepSetOverride   StepKind = "set-override"
	StepClearOverride StepKind = "clear-override"
	StepBind          StepKind = "bind"
	StepProbe         StepKind = "probe"
)

// Step is one write to a kernel control file
type Step struct {
	Kind  StepKind
	Path  string
	Value string
}

// String renders the step as the equivalent shell command
func (s Step) String() string {
	return fmt.Sprintf("echo %q > %s", strings.TrimSuffix(s.Value, "\n"), s.Path)
}

// Plan is the sequence of writes a rebinding takes. Applied counts the steps
// that were executed; it stays zero for a dry run.
type Plan struct {
	Device         string
	OriginalDriver string
	TargetDriver   string
	Changed        bool
	Steps          []Step
	Applied        int
	// OverrideLeft is set when a failed bind could not clear the override
	// it had written.
	OverrideLeft bool
}

// Unbound reports whether the device was detached from its original driver
// before the plan stopped.
func (p Plan) Unbound() bool {
	for i := 0; i < p.Applied && i < len(p.Steps); i++ {
		if p.Steps[i].Kind == StepUnbind {
			return true
		}
	}
	return false
}

func (p Plan) overrideSet() bool {
	for i := 0; i < p.Applied && i < len(p.Steps); i++ {
		if p.Steps[i].Kind == StepSetOverride {
			return true
		}
	}
	return false
}

// Binder moves PCI devices between kernel drivers through sysfs
type Binder struct {
	fx     effects.Effects
	config Config
}

// New creates a Binder
func New(fx effects.Effects, config Config) *Binder {
	if config.TargetDriver == "" {
		config.TargetDriver = DefaultTargetDriver
	}
	if config.SysfsRoot == "" {
		config.SysfsRoot = pci.DefaultSysfsRoot
	}
	if config.Settle == 0 {
		config.Settle = DefaultSettle
	}
	return &Binder{fx: fx, config: config}
}

// TargetDriver returns the passthrough driver name
func (b *Binder) TargetDriver() string {
	return b.config.TargetDriver
}

func (b *Binder) driverFile(driver, name string) string {
	return path.Join(b.config.SysfsRoot, "bus/pci/drivers", driver, name)
}

func (b *Binder) exists(p string) (bool, error) {
	ok, err := b.fx.Exists(p)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", p, err)
	}
	return ok, nil
}

// Bind detaches device from its current driver and attaches it to the target
// driver. A device already bound to the target yields an unchanged plan.
func (b *Binder) Bind(ctx context.Context, device pci.Device, dryRun bool) (Plan, error) {
	target := b.config.TargetDriver
	plan := Plan{Device: device.BDF, OriginalDriver: device.Driver, TargetDriver: target}

	if device.Driver == target {
		logging.Info(subsystem, "Device %s already bound to %s", device.BDF, target)
		return plan, nil
	}

	if device.HasDriver() {
		plan.Steps = append(plan.Steps, Step{Kind: StepUnbind, Path: path.Join(device.Path, "driver/unbind"), Value: device.BDF})
	}

	override := path.Join(device.Path, "driver_override")
	ok, err := b.exists(override)
	if err != nil {
		return plan, err
	}
	if ok {
		plan.Steps = append(plan.Steps, Step{Kind: StepSetOverride, Path: override, Value: target})
	} else {
		logging.Warn(subsystem, "%s not found, skipping driver override", override)
	}

	bind := b.driverFile(target, "bind")
	plan.Steps = append(plan.Steps, Step{Kind: StepBind, Path: bind, Value: device.BDF})
	plan.Changed = true

	if dryRun {
		b.logDryRun(plan)
		return plan, nil
	}

	if ok, err := b.exists(bind); err != nil {
		return plan, err
	} else if !ok {
		return plan, fmt.Errorf("%s (is the %s module loaded?): %w", bind, target, errdefs.ErrNotFound)
	}

	logging.Info(subsystem, "Binding %s (%s) to %s", device.BDF, driverName(device.Driver), target)
	plan, err = b.execute(ctx, plan)
	if err != nil && plan.overrideSet() {
		if clearErr := b.fx.WriteControl(override, clearOverride); clearErr != nil {
			logging.Error(subsystem, clearErr, "Failed to clear driver override of %s", device.BDF)
			plan.OverrideLeft = true
		} else {
			logging.Info(subsystem, "Cleared driver override of %s after failed bind", device.BDF)
		}
	}
	return plan, err
}

// Unbind releases device from the target driver, clears the override and
// asks the kernel to reprobe so the default driver claims it. A device bound
// to any other driver is left alone.
func (b *Binder) Unbind(ctx context.Context, device pci.Device, dryRun bool) (Plan, error) {
	target := b.config.TargetDriver
	plan := Plan{Device: device.BDF, OriginalDriver: device.Driver, TargetDriver: target}

	if device.HasDriver() && device.Driver != target {
		logging.Info(subsystem, "Device %s is bound to %s, not %s; nothing to do", device.BDF, device.Driver, target)
		return plan, nil
	}

	if device.Driver == target {
		unbind := b.driverFile(target, "unbind")
		ok, err := b.exists(unbind)
		if err != nil {
			return plan, err
		}
		if ok {
			plan.Steps = append(plan.Steps, Step{Kind: StepUnbind, Path: unbind, Value: device.BDF})
		} else {
			logging.Warn(subsystem, "%s not found, device might not be bound", unbind)
		}
	}

	steps, err := b.clearOverrideSteps(device)
	if err != nil {
		return plan, err
	}
	plan.Steps = append(plan.Steps, steps...)

	probe := path.Join(b.config.SysfsRoot, "bus/pci/drivers_probe")
	plan.Steps = append(plan.Steps, Step{Kind: StepProbe, Path: probe, Value: device.BDF})
	plan.Changed = true

	if dryRun {
		b.logDryRun(plan)
		return plan, nil
	}

	if ok, err := b.exists(probe); err != nil {
		return plan, err
	} else if !ok {
		return plan, fmt.Errorf("%s: %w", probe, errdefs.ErrNotFound)
	}

	logging.Info(subsystem, "Releasing %s from %s", device.BDF, target)
	return b.execute(ctx, plan)
}

// Restore returns device to a specific driver, detaching it from whatever
// driver holds it now.
func (b *Binder) Restore(ctx context.Context, device pci.Device, driver string, dryRun bool) (Plan, error) {
	plan := Plan{Device: device.BDF, OriginalDriver: device.Driver, TargetDriver: driver}

	if device.Driver == driver {
		logging.Info(subsystem, "Device %s already bound to %s", device.BDF, driver)
		return plan, nil
	}

	if device.HasDriver() {
		plan.Steps = append(plan.Steps, Step{Kind: StepUnbind, Path: path.Join(device.Path, "driver/unbind"), Value: device.BDF})
	}

	steps, err := b.clearOverrideSteps(device)
	if err != nil {
		return plan, err
	}
	plan.Steps = append(plan.Steps, steps...)

	bind := b.driverFile(driver, "bind")
	plan.Steps = append(plan.Steps, Step{Kind: StepBind, Path: bind, Value: device.BDF})
	plan.Changed = true

	if dryRun {
		b.logDryRun(plan)
		return plan, nil
	}

	if ok, err := b.exists(bind); err != nil {
		return plan, err
	} else if !ok {
		return plan, fmt.Errorf("%s (is the %s module loaded?): %w", bind, driver, errdefs.ErrNotFound)
	}

	logging.Info(subsystem, "Restoring %s to %s", device.BDF, driver)
	return b.execute(ctx, plan)
}

func (b *Binder) clearOverrideSteps(device pci.Device) ([]Step, error) {
	override := path.Join(device.Path, "driver_override")
	ok, err := b.exists(override)
	if err != nil {
		return nil, err
	}
	if !ok {
		logging.Warn(subsystem, "%s not found, skipping override clear", override)
		return nil, nil
	}
	return []Step{{Kind: StepClearOverride, Path: override, Value: clearOverride}}, nil
}

// execute performs the plan in order, pausing after every unbind so the
// kernel can release the device.
func (b *Binder) execute(ctx context.Context, plan Plan) (Plan, error) {
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		logging.Debug(subsystem, "%s: %s", step.Kind, step)
		if err := b.fx.WriteControl(step.Path, step.Value); err != nil {
			return plan, fmt.Errorf("%s %s: %w", step.Kind, plan.Device, err)
		}
		plan.Applied++

		if step.Kind == StepUnbind {
			b.fx.Sleep(b.config.Settle)
		}
	}
	return plan, nil
}

func (b *Binder) logDryRun(plan Plan) {
	for _, step := range plan.Steps {
		logging.Info(subsystem, "[DRY RUN] Would execute: %s", step)
	}
}

func driverName(driver string) string {
	if driver == "" {
		return "no driver"
	}
	return driver
}
