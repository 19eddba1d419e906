package changelog

import (
	"encoding/json"
	"fmt"
	"time"

	"passthru/internal/errdefs"
)

// Kind identifies a change variant in the persisted log
type Kind string

const (
	KindFileModified       Kind = "file_modified"
	KindKernelParamAdded   Kind = "kernel_param_added"
	KindKernelParamRemoved Kind = "kernel_param_removed"
	KindModuleLoaded       Kind = "module_loaded"
	KindDriverBound        Kind = "driver_bound"
	KindDriverUnbound      Kind = "driver_unbound"
)

// Change is one reversible mutation of the host. The set of variants is
// closed; every switch over a Change handles all of them.
type Change interface {
	Kind() Kind
	// Target is the file, parameter or device the change applies to.
	Target() string
	// Describe returns a one-line human readable summary.
	Describe() string

	isChange()
}

// FileModified records a file rewritten after a backup was taken
type FileModified struct {
	Path       string `json:"path" yaml:"path"`
	BackupPath string `json:"backup_path" yaml:"backup_path"`
}

// KernelParamAdded records a parameter added through a bootloader tool
type KernelParamAdded struct {
	Parameter  string `json:"parameter" yaml:"parameter"`
	Bootloader string `json:"bootloader" yaml:"bootloader"`
}

// KernelParamRemoved records a parameter removed through a bootloader tool.
// OriginalValue is the exact token that was dropped, if known.
type KernelParamRemoved struct {
	Parameter     string `json:"parameter" yaml:"parameter"`
	Bootloader    string `json:"bootloader" yaml:"bootloader"`
	OriginalValue string `json:"original_value,omitempty" yaml:"original_value,omitempty"`
}

// ModuleLoaded records a module configuration file written. BackupPath is
// empty when the file did not exist before.
type ModuleLoaded struct {
	Name       string `json:"name" yaml:"name"`
	ConfigPath string `json:"config_path" yaml:"config_path"`
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
}

// DriverBound records a device attached to a new driver
type DriverBound struct {
	DeviceBDF      string `json:"device_bdf" yaml:"device_bdf"`
	NewDriver      string `json:"new_driver" yaml:"new_driver"`
	OriginalDriver string `json:"original_driver,omitempty" yaml:"original_driver,omitempty"`
}

// DriverUnbound records a device detached from its driver
type DriverUnbound struct {
	DeviceBDF      string `json:"device_bdf" yaml:"device_bdf"`
	OriginalDriver string `json:"original_driver,omitempty" yaml:"original_driver,omitempty"`
}

func (FileModified) Kind() Kind       { return KindFileModified }
func (KernelParamAdded) Kind() Kind   { return KindKernelParamAdded }
func (KernelParamRemoved) Kind() Kind { return KindKernelParamRemoved }
func (ModuleLoaded) Kind() Kind       { return KindModuleLoaded }
func (DriverBound) Kind() Kind        { return KindDriverBound }
func (DriverUnbound) Kind() Kind      { return KindDriverUnbound }

func (c FileModified) Target() string       { return c.Path }
func (c KernelParamAdded) Target() string   { return c.Parameter }
func (c KernelParamRemoved) Target() string { return c.Parameter }
func (c ModuleLoaded) Target() string       { return c.ConfigPath }
func (c DriverBound) Target() string        { return c.DeviceBDF }
func (c DriverUnbound) Target() string      { return c.DeviceBDF }

func (c FileModified) Describe() string {
	return fmt.Sprintf("modified %s (backup %s)", c.Path, c.BackupPath)
}

func (c KernelParamAdded) Describe() string {
	return fmt.Sprintf("added kernel parameter %s via %s", c.Parameter, c.Bootloader)
}

func (c KernelParamRemoved) Describe() string {
	if c.OriginalValue != "" && c.OriginalValue != c.Parameter {
		return fmt.Sprintf("removed kernel parameter %s (was %s) via %s", c.Parameter, c.OriginalValue, c.Bootloader)
	}
	return fmt.Sprintf("removed kernel parameter %s via %s", c.Parameter, c.Bootloader)
}

func (c ModuleLoaded) Describe() string {
	if c.BackupPath == "" {
		return fmt.Sprintf("created %s for %s", c.ConfigPath, c.Name)
	}
	return fmt.Sprintf("updated %s for %s (backup %s)", c.ConfigPath, c.Name, c.BackupPath)
}

func (c DriverBound) Describe() string {
	return fmt.Sprintf("bound %s to %s (was %s)", c.DeviceBDF, c.NewDriver, orUnknown(c.OriginalDriver))
}

func (c DriverUnbound) Describe() string {
	return fmt.Sprintf("unbound %s from %s", c.DeviceBDF, orUnknown(c.OriginalDriver))
}

func (FileModified) isChange()       {}
func (KernelParamAdded) isChange()   {}
func (KernelParamRemoved) isChange() {}
func (ModuleLoaded) isChange()       {}
func (DriverBound) isChange()        {}
func (DriverUnbound) isChange()      {}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Record is a persisted change with its audit metadata
type Record struct {
	ID         string    `json:"id" yaml:"id"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
	Change     Change    `json:"change" yaml:"change"`
}

type envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	RecordedAt time.Time       `json:"recorded_at"`
	Change     json.RawMessage `json:"change"`
}

// MarshalJSON writes the record as {"id","kind","recorded_at","change"}
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Change == nil {
		return nil, fmt.Errorf("record %s has no change", r.ID)
	}
	payload, err := json.Marshal(r.Change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		ID:         r.ID,
		Kind:       r.Change.Kind(),
		RecordedAt: r.RecordedAt,
		Change:     payload,
	})
}

// UnmarshalJSON decodes the envelope and dispatches on kind. Unknown kinds
// yield an error matching errdefs.ErrInvalidData.
func (r *Record) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%v: %w", err, errdefs.ErrInvalidData)
	}

	change, err := decodeChange(env.Kind, env.Change)
	if err != nil {
		return err
	}
	*r = Record{ID: env.ID, RecordedAt: env.RecordedAt, Change: change}
	return nil
}

func decodeChange(kind Kind, payload json.RawMessage) (Change, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("change %q has no payload: %w", kind, errdefs.ErrInvalidData)
	}

	var (
		change Change
		err    error
	)
	switch kind {
	case KindFileModified:
		var c FileModified
		err = json.Unmarshal(payload, &c)
		change = c
	case KindKernelParamAdded:
		var c KernelParamAdded
		err = json.Unmarshal(payload, &c)
		change = c
	case KindKernelParamRemoved:
		var c KernelParamRemoved
		err = json.Unmarshal(payload, &c)
		change = c
	case KindModuleLoaded:
		var c ModuleLoaded
		err = json.Unmarshal(payload, &c)
		change = c
	case KindDriverBound:
		var c DriverBound
		err = json.Unmarshal(payload, &c)
		change = c
	case KindDriverUnbound:
		var c DriverUnbound
		err = json.Unmarshal(payload, &c)
		change = c
	default:
		return nil, fmt.Errorf("unknown change kind %q: %w", kind, errdefs.ErrInvalidData)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", kind, err, errdefs.ErrInvalidData)
	}
	return change, nil
}
