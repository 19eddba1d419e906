package formatting

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
	"passthru/internal/sysinfo"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatChanges formats the change log as YAML
func (f *YAMLFormatter) FormatChanges(records []changelog.Record) error {
	return f.FormatData(ChangesView{Count: len(records), Changes: NewChangeEntries(records)})
}

// FormatRollback formats a rollback report as YAML
func (f *YAMLFormatter) FormatRollback(report changelog.Report, dryRun bool) error {
	return f.FormatData(NewRollbackView(report, dryRun))
}

// FormatSystemInfo formats host information as YAML
func (f *YAMLFormatter) FormatSystemInfo(info sysinfo.Info) error {
	return f.FormatData(info)
}

// FormatParameters formats a kernel command line as YAML
func (f *YAMLFormatter) FormatParameters(bootloader string, params []string) error {
	if params == nil {
		params = []string{}
	}
	return f.FormatData(ParametersView{Bootloader: bootloader, Parameters: params})
}

// FormatParameterResult formats a parameter edit as YAML
func (f *YAMLFormatter) FormatParameterResult(res bootloader.Result, dryRun bool) error {
	return f.FormatData(ParameterResultView{DryRun: dryRun, Result: res})
}

// FormatPlan formats a rebinding plan as YAML
func (f *YAMLFormatter) FormatPlan(plan binder.Plan, dryRun bool) error {
	return f.FormatData(NewPlanView(plan, dryRun))
}

// FormatModules formats a module configuration result as YAML
func (f *YAMLFormatter) FormatModules(res modules.Result, dryRun bool) error {
	return f.FormatData(ModulesView{DryRun: dryRun, Result: res})
}

// FormatData formats generic data as YAML
func (f *YAMLFormatter) FormatData(data interface{}) error {
	yamlBytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = f.options.Writer.Write(yamlBytes)
	return err
}

// SetOptions updates the formatter options
func (f *YAMLFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}
