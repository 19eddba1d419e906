package formatting

import (
	"encoding/json"
	"fmt"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
	"passthru/internal/sysinfo"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatChanges formats the change log as JSON
func (f *JSONFormatter) FormatChanges(records []changelog.Record) error {
	return f.FormatData(ChangesView{Count: len(records), Changes: NewChangeEntries(records)})
}

// FormatRollback formats a rollback report as JSON
func (f *JSONFormatter) FormatRollback(report changelog.Report, dryRun bool) error {
	return f.FormatData(NewRollbackView(report, dryRun))
}

// FormatSystemInfo formats host information as JSON
func (f *JSONFormatter) FormatSystemInfo(info sysinfo.Info) error {
	return f.FormatData(info)
}

// FormatParameters formats a kernel command line as JSON
func (f *JSONFormatter) FormatParameters(bootloader string, params []string) error {
	if params == nil {
		params = []string{}
	}
	return f.FormatData(ParametersView{Bootloader: bootloader, Parameters: params})
}

// FormatParameterResult formats a parameter edit as JSON
func (f *JSONFormatter) FormatParameterResult(res bootloader.Result, dryRun bool) error {
	return f.FormatData(ParameterResultView{DryRun: dryRun, Result: res})
}

// FormatPlan formats a rebinding plan as JSON
func (f *JSONFormatter) FormatPlan(plan binder.Plan, dryRun bool) error {
	return f.FormatData(NewPlanView(plan, dryRun))
}

// FormatModules formats a module configuration result as JSON
func (f *JSONFormatter) FormatModules(res modules.Result, dryRun bool) error {
	return f.FormatData(ModulesView{DryRun: dryRun, Result: res})
}

// FormatData formats generic data as JSON
func (f *JSONFormatter) FormatData(data interface{}) error {
	out, err := f.marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.options.Writer, out)
	return err
}

// SetOptions updates the formatter options
func (f *JSONFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}

// marshal converts data to JSON string with appropriate formatting
func (f *JSONFormatter) marshal(data interface{}) (string, error) {
	var jsonBytes []byte
	var err error

	if f.options.Quiet {
		// Compact JSON for quiet mode
		jsonBytes, err = json.Marshal(data)
	} else {
		jsonBytes, err = json.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	return string(jsonBytes), nil
}
