package formatting

import (
	"time"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
)

// ChangeEntry is the structured rendering of a change log record
type ChangeEntry struct {
	ID          string           `json:"id" yaml:"id"`
	Kind        changelog.Kind   `json:"kind" yaml:"kind"`
	RecordedAt  time.Time        `json:"recorded_at" yaml:"recorded_at"`
	Target      string           `json:"target" yaml:"target"`
	Description string           `json:"description" yaml:"description"`
	Details     changelog.Change `json:"details" yaml:"details"`
}

// NewChangeEntries converts records, keeping their order
func NewChangeEntries(records []changelog.Record) []ChangeEntry {
	entries := make([]ChangeEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, ChangeEntry{
			ID:          r.ID,
			Kind:        r.Change.Kind(),
			RecordedAt:  r.RecordedAt,
			Target:      r.Change.Target(),
			Description: r.Change.Describe(),
			Details:     r.Change,
		})
	}
	return entries
}

// ChangesView is the structured rendering of the change log
type ChangesView struct {
	Count   int           `json:"count" yaml:"count"`
	Changes []ChangeEntry `json:"changes" yaml:"changes"`
}

// RollbackView is the structured rendering of a rollback report
type RollbackView struct {
	DryRun      bool          `json:"dry_run" yaml:"dry_run"`
	Undone      []ChangeEntry `json:"undone" yaml:"undone"`
	Failed      []ChangeEntry `json:"failed,omitempty" yaml:"failed,omitempty"`
	Skipped     []string      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	ManualSteps []string      `json:"manual_steps,omitempty" yaml:"manual_steps,omitempty"`
}

// NewRollbackView converts a rollback report
func NewRollbackView(report changelog.Report, dryRun bool) RollbackView {
	return RollbackView{
		DryRun:      dryRun,
		Undone:      NewChangeEntries(report.Undone),
		Failed:      NewChangeEntries(report.Failed),
		Skipped:     report.Skipped,
		ManualSteps: report.ManualSteps,
	}
}

// ParametersView is the kernel command line of a bootloader
type ParametersView struct {
	Bootloader string   `json:"bootloader" yaml:"bootloader"`
	Parameters []string `json:"parameters" yaml:"parameters"`
}

// ParameterResultView wraps a parameter edit with its mode
type ParameterResultView struct {
	DryRun            bool `json:"dry_run" yaml:"dry_run"`
	bootloader.Result `yaml:",inline"`
}

// PlanStep is one sysfs write of a plan
type PlanStep struct {
	Kind    binder.StepKind `json:"kind" yaml:"kind"`
	Path    string          `json:"path" yaml:"path"`
	Value   string          `json:"value" yaml:"value"`
	Applied bool            `json:"applied" yaml:"applied"`
}

// PlanView is the structured rendering of a rebinding plan
type PlanView struct {
	DryRun         bool       `json:"dry_run" yaml:"dry_run"`
	Device         string     `json:"device" yaml:"device"`
	OriginalDriver string     `json:"original_driver,omitempty" yaml:"original_driver,omitempty"`
	TargetDriver   string     `json:"target_driver" yaml:"target_driver"`
	Changed        bool       `json:"changed" yaml:"changed"`
	Steps          []PlanStep `json:"steps" yaml:"steps"`
}

// NewPlanView converts a rebinding plan
func NewPlanView(plan binder.Plan, dryRun bool) PlanView {
	steps := make([]PlanStep, 0, len(plan.Steps))
	for i, s := range plan.Steps {
		steps = append(steps, PlanStep{Kind: s.Kind, Path: s.Path, Value: s.Value, Applied: i < plan.Applied})
	}
	return PlanView{
		DryRun:         dryRun,
		Device:         plan.Device,
		OriginalDriver: plan.OriginalDriver,
		TargetDriver:   plan.TargetDriver,
		Changed:        plan.Changed,
		Steps:          steps,
	}
}

// ModulesView wraps a module configuration result with its mode
type ModulesView struct {
	DryRun         bool `json:"dry_run" yaml:"dry_run"`
	modules.Result `yaml:",inline"`
}
