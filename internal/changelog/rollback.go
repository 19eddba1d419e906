package changelog

import (
	"context"
	"fmt"

	"passthru/internal/backup"
	"passthru/internal/bootloader"
	"passthru/internal/errdefs"
	"passthru/pkg/logging"
)

// ParamEditor edits kernel parameters through a bootloader backend
type ParamEditor interface {
	AddParameters(ctx context.Context, params []string, dryRun bool) (bootloader.Result, error)
	RemoveParameters(ctx context.Context, params []string, dryRun bool) (bootloader.Result, error)
}

// DeviceRestorer returns a PCI device to a driver
type DeviceRestorer interface {
	RestoreDriver(ctx context.Context, bdf, driver string, dryRun bool) error
}

// Undo carries the collaborators rollback needs beyond the filesystem. A nil
// collaborator turns the corresponding changes into manual steps.
type Undo struct {
	// Bootloader returns the backend recorded under name.
	Bootloader func(name string) (ParamEditor, error)
	// Devices rebinds devices to their original drivers.
	Devices DeviceRestorer
	// DryRun reports what would be undone without touching the host or the log.
	DryRun bool
}

// Report summarizes a rollback
type Report struct {
	// Undone lists the records reverted, newest first.
	Undone []Record
	// Failed lists the records whose undo failed; they stay in the log.
	Failed []Record
	// Skipped lists changes that needed no action, e.g. a missing backup.
	Skipped []string
	// ManualSteps lists actions the operator has to take.
	ManualSteps []string
}

// NeedsActivation reports whether a reverted change touched the bootloader
// configuration, which then has to be regenerated.
func (r Report) NeedsActivation() bool {
	for _, rec := range r.Undone {
		switch rec.Change.(type) {
		case FileModified, KernelParamAdded, KernelParamRemoved:
			return true
		}
	}
	return false
}

// NeedsInitramfs reports whether a reverted change touched module
// configuration that is baked into the initramfs.
func (r Report) NeedsInitramfs() bool {
	for _, rec := range r.Undone {
		if _, ok := rec.Change.(ModuleLoaded); ok {
			return true
		}
	}
	return false
}

// outcome of undoing a single change
type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeManual
)

// RollbackAll undoes every record newest first. Individual failures do not
// stop the rollback; they are aggregated into an *errdefs.PartialFailure and
// the failed records are kept in the log so the rollback can be retried or
// handed to the cleanup script. The shortened log is persisted regardless.
func (l *Log) RollbackAll(ctx context.Context, undo Undo) (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report Report
	if len(l.records) == 0 {
		logging.Info(subsystem, "No changes to roll back")
		return report, nil
	}

	prefix := ""
	if undo.DryRun {
		prefix = "[DRY RUN] "
	} else {
		l.state = StateDraining
	}
	logging.Info(subsystem, "%sRolling back %d changes", prefix, len(l.records))

	failures := &errdefs.PartialFailure{Operation: "rollback"}
	var kept []Record

	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if err := ctx.Err(); err != nil {
			failures.Add(rec.Change.Describe(), err)
			report.Failed = append(report.Failed, rec)
			kept = append(kept, rec)
			continue
		}

		logging.Info(subsystem, "%sRolling back: %s", prefix, rec.Change.Describe())
		out, msg, err := l.undoChange(ctx, rec.Change, undo)
		if err != nil {
			logging.Error(subsystem, err, "Rollback of %s failed", rec.Change.Describe())
			failures.Add(rec.Change.Describe(), err)
			report.Failed = append(report.Failed, rec)
			kept = append(kept, rec)
			continue
		}

		switch out {
		case outcomeSkipped:
			logging.Warn(subsystem, "%s", msg)
			report.Skipped = append(report.Skipped, msg)
		case outcomeManual:
			logging.Warn(subsystem, "Manual action needed: %s", msg)
			report.ManualSteps = append(report.ManualSteps, msg)
		}
		report.Undone = append(report.Undone, rec)
	}

	if undo.DryRun {
		return report, failures.ErrOrNil()
	}

	// kept was collected newest first
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	l.records = kept
	if len(kept) == 0 {
		l.state = StateEmpty
	} else {
		l.state = StatePartiallyFailed
	}

	outcomeLabel := "success"
	if failures.HasFailures() {
		outcomeLabel = "failure"
	}
	logging.Audit(logging.AuditEvent{
		Action:  "rollback",
		Target:  l.path,
		Outcome: outcomeLabel,
		Detail:  fmt.Sprintf("%d undone, %d failed", len(report.Undone), len(report.Failed)),
	})

	if err := l.saveLocked(); err != nil {
		failures.Add("persist change log", err)
	}
	return report, failures.ErrOrNil()
}

func (l *Log) undoChange(ctx context.Context, change Change, undo Undo) (outcome, string, error) {
	switch c := change.(type) {
	case FileModified:
		return l.undoFile(c, undo.DryRun)
	case KernelParamAdded:
		return undoParam(ctx, undo, c.Bootloader, c.Parameter, false)
	case KernelParamRemoved:
		value := c.OriginalValue
		if value == "" {
			value = c.Parameter
		}
		return undoParam(ctx, undo, c.Bootloader, value, true)
	case ModuleLoaded:
		return l.undoModule(c, undo.DryRun)
	case DriverBound:
		return undoDriver(ctx, undo, c.DeviceBDF, c.OriginalDriver)
	case DriverUnbound:
		return undoDriver(ctx, undo, c.DeviceBDF, c.OriginalDriver)
	default:
		return outcomeDone, "", fmt.Errorf("change %T: %w", change, errdefs.ErrNotSupported)
	}
}

func (l *Log) undoFile(c FileModified, dryRun bool) (outcome, string, error) {
	exists := false
	if c.BackupPath != "" {
		var err error
		if exists, err = l.fx.Exists(c.BackupPath); err != nil {
			return outcomeDone, "", err
		}
	}
	if !exists {
		return outcomeSkipped, fmt.Sprintf("Backup file %s not found, cannot restore %s", c.BackupPath, c.Path), nil
	}
	if dryRun {
		logging.Info(subsystem, "[DRY RUN] Would restore %s from %s", c.Path, c.BackupPath)
		return outcomeDone, "", nil
	}
	return outcomeDone, "", backup.Restore(l.fx, c.BackupPath, c.Path)
}

func (l *Log) undoModule(c ModuleLoaded, dryRun bool) (outcome, string, error) {
	if c.BackupPath != "" {
		exists, err := l.fx.Exists(c.BackupPath)
		if err != nil {
			return outcomeDone, "", err
		}
		if !exists {
			return outcomeSkipped, fmt.Sprintf("Backup file %s not found, leaving %s in place", c.BackupPath, c.ConfigPath), nil
		}
		if dryRun {
			logging.Info(subsystem, "[DRY RUN] Would restore %s from %s", c.ConfigPath, c.BackupPath)
			return outcomeDone, "", nil
		}
		return outcomeDone, "", backup.Restore(l.fx, c.BackupPath, c.ConfigPath)
	}

	// no backup means the file did not exist before it was written

	exists, err := l.fx.Exists(c.ConfigPath)
	if err != nil {
		return outcomeDone, "", err
	}
	if !exists {
		return outcomeSkipped, fmt.Sprintf("%s already absent", c.ConfigPath), nil
	}
	if dryRun {
		logging.Info(subsystem, "[DRY RUN] Would remove %s", c.ConfigPath)
		return outcomeDone, "", nil
	}
	if err := l.fx.Remove(c.ConfigPath); err != nil {
		return outcomeDone, "", fmt.Errorf("failed to remove %s: %w", c.ConfigPath, err)
	}
	logging.Info(subsystem, "Removed %s", c.ConfigPath)
	return outcomeDone, "", nil
}

func undoParam(ctx context.Context, undo Undo, name, param string, restore bool) (outcome, string, error) {
	verb := "Remove"
	if restore {
		verb = "Restore"
	}
	manual := fmt.Sprintf("%s kernel parameter '%s' for %s bootloader and update", verb, param, name)

	if undo.Bootloader == nil {
		return outcomeManual, manual, nil
	}
	editor, err := undo.Bootloader(name)
	if err != nil {
		return outcomeDone, "", fmt.Errorf("bootloader %s: %w", name, err)
	}
	if editor == nil {
		return outcomeManual, manual, nil
	}

	var res bootloader.Result
	if restore {
		res, err = editor.AddParameters(ctx, []string{param}, undo.DryRun)
	} else {
		res, err = editor.RemoveParameters(ctx, []string{param}, undo.DryRun)
	}
	if err != nil {
		return outcomeDone, "", err
	}
	if len(res.Failed) > 0 {
		return outcomeDone, "", fmt.Errorf("%s refused parameter %s: %w", name, param, errdefs.ErrCommandFailed)
	}
	return outcomeDone, "", nil
}

func undoDriver(ctx context.Context, undo Undo, bdf, original string) (outcome, string, error) {
	if original == "" {
		return outcomeManual, fmt.Sprintf("Original driver for %s unknown, cannot automatically rebind. May need manual rebind or reboot.", bdf), nil
	}
	if undo.Devices == nil {
		return outcomeManual, fmt.Sprintf("Rebind %s to driver %s", bdf, original), nil
	}
	return outcomeDone, "", undo.Devices.RestoreDriver(ctx, bdf, original, undo.DryRun)
}
