// Package formatting renders command results for the terminal.
//
// Every command result has a rich table rendering for interactive use and a
// structured JSON or YAML rendering for scripts. The structured renderings
// share the view types in views.go so both formats carry the same fields.
package formatting

import (
	"fmt"
	"io"
	"os"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/modules"
	"passthru/internal/sysinfo"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the accepted output formats
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// ParseFormat validates an output format name
func ParseFormat(s string) (OutputFormat, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q (valid: table, json, yaml)", s)
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool      // Suppress decorative elements
	Color  bool      // Enable colored output
	Writer io.Writer // Defaults to stdout
}

// Formatter renders the results of passthru operations
type Formatter interface {
	// Change log
	FormatChanges(records []changelog.Record) error
	FormatRollback(report changelog.Report, dryRun bool) error

	// Host
	FormatSystemInfo(info sysinfo.Info) error

	// Operations
	FormatParameters(bootloader string, params []string) error
	FormatParameterResult(res bootloader.Result, dryRun bool) error
	FormatPlan(plan binder.Plan, dryRun bool) error
	FormatModules(res modules.Result, dryRun bool) error

	// Generic data formatting
	FormatData(data interface{}) error

	// Configuration
	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

// factory implements the Factory interface
type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	if options.Writer == nil {
		options.Writer = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		fallthrough
	default:
		return NewTableFormatter(options)
	}
}
