package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/errdefs"
	"passthru/internal/kparams"
	"passthru/internal/modules"
	"passthru/internal/pci"
	"passthru/internal/sysinfo"
	"passthru/pkg/logging"
)

const subsystem = "App"

// isRoot is a variable to allow mocking in tests
var isRoot = sysinfo.IsRoot

// ParameterView is the current kernel command line of a backend
type ParameterView struct {
	Bootloader string   `json:"bootloader" yaml:"bootloader"`
	Parameters []string `json:"parameters" yaml:"parameters"`
}

func (a *Application) requireRoot(op string) error {
	if a.config.DryRun || isRoot() {
		return nil
	}
	return fmt.Errorf("%s requires root privileges (use --dry-run to preview): %w", op, os.ErrPermission)
}

// withSpinner runs fn while a progress spinner is shown on an interactive
// terminal.
func (a *Application) withSpinner(message string, fn func() error) error {
	if a.config.Quiet || a.config.DryRun {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()
	defer s.Stop()

	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Failed: "+message) + "\n"
	}
	return err
}

// record appends changes to the log, continuing past persist failures so
// every applied change is at least kept in memory.
func (a *Application) record(operation string, changes []changelog.Change) error {
	failures := &errdefs.PartialFailure{Operation: operation}
	for _, c := range changes {
		if err := a.services.ChangeLog.Record(c); err != nil {
			failures.Add("record "+c.Describe(), err)
		}
	}
	return failures.ErrOrNil()
}

// Parameters returns the kernel parameters of the selected backend
func (a *Application) Parameters(ctx context.Context) (ParameterView, error) {
	backend, err := a.Backend(ctx)
	if err != nil {
		return ParameterView{}, err
	}
	params, err := backend.Parameters(ctx)
	if err != nil {
		return ParameterView{}, err
	}
	return ParameterView{Bootloader: backend.Name(), Parameters: params}, nil
}

// AddParameters adds kernel parameters through the selected backend and
// records the change. Regeneration is left to Activate.
func (a *Application) AddParameters(ctx context.Context, params []string) (bootloader.Result, error) {
	return a.updateParameters(ctx, params, true)
}

// RemoveParameters removes kernel parameters through the selected backend and
// records the change.
func (a *Application) RemoveParameters(ctx context.Context, params []string) (bootloader.Result, error) {
	return a.updateParameters(ctx, params, false)
}

func (a *Application) updateParameters(ctx context.Context, params []string, add bool) (bootloader.Result, error) {
	op := "remove parameters"
	if add {
		op = "add parameters"
	}
	if err := a.requireRoot(op); err != nil {
		return bootloader.Result{}, err
	}
	backend, err := a.Backend(ctx)
	if err != nil {
		return bootloader.Result{}, err
	}

	var res bootloader.Result
	if add {
		res, err = backend.AddParameters(ctx, params, a.config.DryRun)
	} else {
		res, err = backend.RemoveParameters(ctx, params, a.config.DryRun)
	}
	if err != nil {
		// entries rewritten before the failure still have to be reversible
		if changes := parameterChanges(backend, res); !a.config.DryRun && len(changes) > 0 {
			if recErr := a.record(op, changes); recErr != nil {
				logging.Error(subsystem, recErr, "Failed to record partial %s", op)
			}
		}
		return res, err
	}
	if !res.Changed {
		logging.Info(subsystem, "Kernel parameters already up to date for %s", backend.Name())
	}

	failures := &errdefs.PartialFailure{Operation: op}
	for _, p := range res.Failed {
		failures.Add(fmt.Sprintf("%s %s", backend.Name(), p), errdefs.ErrCommandFailed)
	}

	if a.config.DryRun || !res.Changed {
		return res, failures.ErrOrNil()
	}
	if err := a.record(op, parameterChanges(backend, res)); err != nil {
		failures.Add("change log", err)
	}
	return res, failures.ErrOrNil()
}

// parameterChanges translates a backend result into change log entries.
// File backends are undone by restoring the backup; kernelstub keeps no file
// so every parameter is recorded for reversal through the tool.
func parameterChanges(backend *bootloader.Backend, res bootloader.Result) []changelog.Change {
	var changes []changelog.Change
	switch backend.Kind {
	case bootloader.KindKernelstub:
		for _, p := range res.Added {
			changes = append(changes, changelog.KernelParamAdded{Parameter: p, Bootloader: backend.Name()})
		}
		for _, p := range res.Removed {
			changes = append(changes, changelog.KernelParamRemoved{
				Parameter:     kparams.Key(p),
				Bootloader:    backend.Name(),
				OriginalValue: p,
			})
		}
	default:
		for _, fb := range res.Backups {
			changes = append(changes, changelog.FileModified{Path: fb.Path, BackupPath: fb.BackupPath})
		}
	}
	return changes
}

// EnableIOMMU adds the IOMMU parameters for the host CPU vendor and, when ids
// are given, vfio-pci.ids so the devices are claimed at boot.
func (a *Application) EnableIOMMU(ctx context.Context, ids []string) (bootloader.Result, error) {
	info, err := a.SystemInfo(ctx)
	if err != nil {
		return bootloader.Result{}, err
	}
	if !info.Virtualization {
		logging.Warn(subsystem, "CPU does not advertise hardware virtualization (svm/vmx); check the firmware settings")
	}

	params, err := kparams.IOMMUParameters(info.CPUVendor)
	if err != nil {
		return bootloader.Result{}, err
	}
	if len(ids) > 0 {
		vfio, err := kparams.VFIOIDs(ids)
		if err != nil {
			return bootloader.Result{}, err
		}
		params = append(params, vfio)
	}
	return a.AddParameters(ctx, params)
}

// Activate regenerates the boot configuration of the selected backend
func (a *Application) Activate(ctx context.Context) error {
	if err := a.requireRoot("activate"); err != nil {
		return err
	}
	backend, err := a.Backend(ctx)
	if err != nil {
		return err
	}

	err = a.withSpinner("Regenerating "+backend.Name()+" configuration...", func() error {
		return backend.Activate(ctx, a.config.DryRun)
	})
	if a.config.DryRun {
		return err
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	logging.Audit(logging.AuditEvent{Action: "activate", Target: backend.Name(), Outcome: outcome})
	return err
}

// Device resolves a PCI address and reads its current driver
func (a *Application) Device(bdf string) (pci.Device, error) {
	return pci.Lookup(a.services.Effects, a.services.SysfsRoot, bdf)
}

// BindDevice hands a PCI device to the passthrough driver and records the
// binding. If the sequence stops after the device was released, the release
// is recorded so rollback can return it to its original driver.
func (a *Application) BindDevice(ctx context.Context, bdf string) (binder.Plan, error) {
	if err := a.requireRoot("bind device"); err != nil {
		return binder.Plan{}, err
	}
	device, err := pci.Lookup(a.services.Effects, a.services.SysfsRoot, bdf)
	if err != nil {
		return binder.Plan{}, err
	}

	plan, err := a.services.Binder.Bind(ctx, device, a.config.DryRun)
	if a.config.DryRun || !plan.Changed {
		return plan, err
	}

	if err != nil {
		if plan.Unbound() || plan.OverrideLeft {
			if recErr := a.record("bind device", []changelog.Change{
				changelog.DriverUnbound{DeviceBDF: device.BDF, OriginalDriver: plan.OriginalDriver},
			}); recErr != nil {
				logging.Error(subsystem, recErr, "Failed to record release of %s", device.BDF)
			}
		}
		logging.Audit(logging.AuditEvent{Action: "driver_bound", Target: device.BDF, Outcome: "failure", Detail: err.Error()})
		return plan, err
	}

	return plan, a.record("bind device", []changelog.Change{changelog.DriverBound{
		DeviceBDF:      device.BDF,
		NewDriver:      plan.TargetDriver,
		OriginalDriver: plan.OriginalDriver,
	}})
}

// UnbindDevice releases a PCI device from the passthrough driver and lets the
// kernel reprobe it. Rollback binds it back to the passthrough driver.
func (a *Application) UnbindDevice(ctx context.Context, bdf string) (binder.Plan, error) {
	if err := a.requireRoot("unbind device"); err != nil {
		return binder.Plan{}, err
	}
	device, err := pci.Lookup(a.services.Effects, a.services.SysfsRoot, bdf)
	if err != nil {
		return binder.Plan{}, err
	}

	plan, err := a.services.Binder.Unbind(ctx, device, a.config.DryRun)
	if a.config.DryRun || !plan.Changed || plan.Applied == 0 {
		return plan, err
	}

	recErr := a.record("unbind device", []changelog.Change{
		changelog.DriverUnbound{DeviceBDF: device.BDF, OriginalDriver: plan.OriginalDriver},
	})
	if err != nil {
		return plan, err
	}
	return plan, recErr
}

// ConfigureModules writes the vfio module configuration for ids and records
// every file written.
func (a *Application) ConfigureModules(ctx context.Context, ids []string) (modules.Result, error) {
	if err := a.requireRoot("configure modules"); err != nil {
		return modules.Result{}, err
	}

	res, err := a.services.Modules.Configure(ctx, ids, a.config.DryRun)
	if a.config.DryRun || len(res.Files) == 0 {
		return res, err
	}

	changes := make([]changelog.Change, 0, len(res.Files))
	for _, f := range res.Files {
		changes = append(changes, changelog.ModuleLoaded{Name: modules.ModuleName, ConfigPath: f.Path, BackupPath: f.BackupPath})
	}
	recErr := a.record("configure modules", changes)
	if err != nil {
		return res, err
	}
	return res, recErr
}

// UpdateInitramfs regenerates the initramfs with the detected generator
func (a *Application) UpdateInitramfs(ctx context.Context) error {
	if err := a.requireRoot("update initramfs"); err != nil {
		return err
	}
	info, err := a.SystemInfo(ctx)
	if err != nil {
		return err
	}

	err = a.withSpinner("Regenerating initramfs with "+string(info.Initramfs)+"...", func() error {
		return a.services.Modules.UpdateInitramfs(ctx, info.Initramfs, a.config.DryRun)
	})
	if !a.config.DryRun {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		logging.Audit(logging.AuditEvent{Action: "initramfs_updated", Target: string(info.Initramfs), Outcome: outcome})
	}
	return err
}

// Changes returns the recorded changes, oldest first
func (a *Application) Changes() []changelog.Record {
	return a.services.ChangeLog.Changes()
}

// ChangeLogState returns the state of the change log
func (a *Application) ChangeLogState() changelog.State {
	return a.services.ChangeLog.State()
}

// Rollback undoes every recorded change, newest first. When activate is set
// and a reverted change touched the bootloader configuration, the
// configuration is regenerated afterwards.
func (a *Application) Rollback(ctx context.Context, activate bool) (changelog.Report, error) {
	if err := a.requireRoot("rollback"); err != nil {
		return changelog.Report{}, err
	}

	report, err := a.services.ChangeLog.RollbackAll(ctx, changelog.Undo{
		Bootloader: a.services.bootloaderNamed,
		Devices:    deviceRestorer{services: a.services},
		DryRun:     a.config.DryRun,
	})

	if report.NeedsActivation() {
		if activate && !a.config.DryRun {
			if actErr := a.Activate(ctx); actErr != nil {
				logging.Error(subsystem, actErr, "Failed to regenerate boot configuration after rollback")
				report.ManualSteps = append(report.ManualSteps, "Regenerate the boot configuration: passthru activate")
			}
		} else {
			report.ManualSteps = append(report.ManualSteps, "Regenerate the boot configuration: passthru activate")
		}
	}
	if report.NeedsInitramfs() {
		report.ManualSteps = append(report.ManualSteps, "Regenerate the initramfs: passthru modules initramfs")
	}
	return report, err
}

// CleanupScript renders the bash fallback for the recorded changes
func (a *Application) CleanupScript() (string, error) {
	return a.services.ChangeLog.CleanupScript()
}

// ClearChanges forgets every recorded change without undoing it
func (a *Application) ClearChanges() error {
	if a.config.DryRun {
		logging.Info(subsystem, "[DRY RUN] Would discard %d recorded changes", a.services.ChangeLog.Len())
		return nil
	}
	return a.services.ChangeLog.Clear()
}
