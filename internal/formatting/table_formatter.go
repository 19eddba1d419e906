package formatting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"passthru/internal/binder"
	"passthru/internal/bootloader"
	"passthru/internal/changelog"
	"passthru/internal/kparams"
	"passthru/internal/modules"
	"passthru/internal/sysinfo"
)

const (
	timeLayout    = "2006-01-02 15:04:05"
	maxValueWidth = 100
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatChanges formats the change log as a table, oldest first
func (f *TableFormatter) FormatChanges(records []changelog.Record) error {
	if len(records) == 0 {
		return f.printf("%s\n", f.formatEmptyMessage("📋", "No changes recorded"))
	}

	t := f.createTable()
	t.AppendHeader(f.header("#", "ID", "KIND", "RECORDED", "DESCRIPTION"))
	for i, r := range records {
		t.AppendRow(table.Row{
			i + 1,
			shortID(r.ID),
			f.paint(text.FgHiCyan, string(r.Change.Kind())),
			r.RecordedAt.Local().Format(timeLayout),
			text.Snip(r.Change.Describe(), maxValueWidth, "..."),
		})
	}
	t.Render()

	return f.printf("\n%s %s %s\n",
		f.paint(text.FgHiBlue, "Total:"),
		f.paint(text.FgHiWhite, fmt.Sprint(len(records))),
		f.paint(text.FgHiBlue, "changes"))
}

// FormatRollback formats a rollback report
func (f *TableFormatter) FormatRollback(report changelog.Report, dryRun bool) error {
	var out []string
	prefix := ""
	if dryRun {
		prefix = "[DRY RUN] Would revert: "
	}

	if len(report.Undone) == 0 && len(report.Failed) == 0 && len(report.Skipped) == 0 {
		out = append(out, f.formatEmptyMessage("📋", "No changes to roll back"))
	}
	for _, r := range report.Undone {
		out = append(out, f.paint(text.FgGreen, "✓ ")+prefix+r.Change.Describe())
	}
	for _, s := range report.Skipped {
		out = append(out, f.paint(text.FgYellow, "- ")+s)
	}
	for _, r := range report.Failed {
		out = append(out, f.paint(text.FgRed, "✗ ")+r.Change.Describe())
	}

	if len(report.ManualSteps) > 0 {
		out = append(out, "", f.paint(text.FgYellow, "Manual steps required:"))
		for i, step := range report.ManualSteps {
			out = append(out, fmt.Sprintf("  %d. %s", i+1, step))
		}
	}

	if !f.options.Quiet && !dryRun {
		out = append(out, "", fmt.Sprintf("%s %d reverted, %d failed",
			f.paint(text.FgHiBlue, "Rollback:"), len(report.Undone), len(report.Failed)))
	}
	return f.printf("%s\n", strings.Join(out, "\n"))
}

// FormatSystemInfo formats host information as key-value pairs
func (f *TableFormatter) FormatSystemInfo(info sysinfo.Info) error {
	t := f.createTable()
	t.AppendHeader(f.header("PROPERTY", "VALUE"))

	distro := "unknown"
	if info.Distribution != nil {
		distro = info.Distribution.Name
		if info.Distribution.Version != "" {
			distro += " " + info.Distribution.Version
		}
		distro += fmt.Sprintf(" (%s)", info.Distribution.Family)
	}
	secureBoot := "unknown"
	if info.SecureBoot != nil {
		secureBoot = f.yesNo(*info.SecureBoot)
	}
	esp := info.ESP
	if esp == "" {
		esp = "-"
	}

	rows := []table.Row{
		{"Distribution", distro},
		{"Kernel", info.Kernel.Release},
		{"Bootloader", string(info.Bootloader)},
		{"CPU vendor", info.CPUVendor},
		{"Virtualization", f.yesNo(info.Virtualization)},
		{"Init system", string(info.InitSystem)},
		{"Initramfs", string(info.Initramfs)},
		{"Secure Boot", secureBoot},
		{"EFI system partition", esp},
	}
	for _, row := range rows {
		row[0] = f.paint(text.FgHiCyan, row[0].(string))
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

// FormatParameters formats a kernel command line, one parameter per row
func (f *TableFormatter) FormatParameters(bootloader string, params []string) error {
	if err := f.printf("%s %s\n", f.paint(text.FgHiBlue, "Bootloader:"), bootloader); err != nil {
		return err
	}
	if len(params) == 0 {
		return f.printf("%s\n", f.formatEmptyMessage("📋", "No kernel parameters configured"))
	}

	sorted := append([]string(nil), params...)
	sort.Strings(sorted)

	t := f.createTable()
	t.AppendHeader(f.header("PARAMETER", "VALUE"))
	for _, p := range sorted {
		key := kparams.Key(p)
		value := strings.TrimPrefix(strings.TrimPrefix(p, key), "=")
		t.AppendRow(table.Row{f.paint(text.FgHiCyan, key), value})
	}
	t.Render()
	return nil
}

// FormatParameterResult formats the outcome of a parameter edit
func (f *TableFormatter) FormatParameterResult(res bootloader.Result, dryRun bool) error {
	if !res.Changed && len(res.Failed) == 0 {
		return f.printf("Kernel parameters already up to date\n")
	}

	var out []string
	if dryRun {
		out = append(out, f.paint(text.FgYellow, "[DRY RUN] No changes were written"))
	}
	for _, p := range res.Added {
		out = append(out, f.paint(text.FgGreen, "+ ")+p)
	}
	for _, p := range res.Removed {
		out = append(out, f.paint(text.FgRed, "- ")+p)
	}
	for _, p := range res.Failed {
		out = append(out, f.paint(text.FgRed, "✗ ")+p+" (refused by bootloader tool)")
	}
	for _, b := range res.Backups {
		if b.BackupPath != "" {
			out = append(out, fmt.Sprintf("Backup of %s saved to %s", b.Path, b.BackupPath))
		}
	}
	if res.Changed && !dryRun && !f.options.Quiet {
		out = append(out, "", "Run 'passthru activate' to regenerate the boot configuration.")
	}
	return f.printf("%s\n", strings.Join(out, "\n"))
}

// FormatPlan formats a rebinding plan with the state of every step
func (f *TableFormatter) FormatPlan(plan binder.Plan, dryRun bool) error {
	if !plan.Changed {
		return f.printf("Device %s: nothing to do (bound to %s)\n", plan.Device, driverLabel(plan.OriginalDriver))
	}

	if err := f.printf("%s %s: %s → %s\n", f.paint(text.FgHiBlue, "Device"),
		plan.Device, driverLabel(plan.OriginalDriver), plan.TargetDriver); err != nil {
		return err
	}

	t := f.createTable()
	t.AppendHeader(f.header("#", "STEP", "COMMAND", "STATUS"))
	for i, s := range plan.Steps {
		t.AppendRow(table.Row{i + 1, string(s.Kind), s.String(), f.stepStatus(i, plan, dryRun)})
	}
	t.Render()
	return nil
}

// FormatModules formats the files written by a module configuration
func (f *TableFormatter) FormatModules(res modules.Result, dryRun bool) error {
	if !res.Changed {
		return f.printf("Module configuration already up to date for %s\n", strings.Join(res.IDs, ", "))
	}

	var out []string
	if dryRun {
		out = append(out, f.paint(text.FgYellow, "[DRY RUN] No changes were written"))
	}
	out = append(out, fmt.Sprintf("%s %s", f.paint(text.FgHiBlue, "Device IDs:"), strings.Join(res.IDs, ", ")))
	for _, file := range res.Files {
		action := "updated"
		if file.Created {
			action = "created"
		}
		line := fmt.Sprintf("%s %s (%s)", f.paint(text.FgGreen, "✓"), file.Path, action)
		if file.BackupPath != "" {
			line += ", backup " + file.BackupPath
		}
		out = append(out, line)
	}
	if !dryRun && !f.options.Quiet {
		out = append(out, "", "Run 'passthru modules initramfs' to apply the configuration at boot.")
	}
	return f.printf("%s\n", strings.Join(out, "\n"))
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(d)
	case []string:
		return f.formatArrayData(d)
	case string:
		return f.printf("%s\n", d)
	default:
		return f.printf("%s\n", PrettyJSON(d))
	}
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// Helper methods

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Writer)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(f.options.Writer, format, args...)
	return err
}

// paint colors s when color output is enabled
func (f *TableFormatter) paint(color text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return color.Sprint(s)
}

func (f *TableFormatter) header(names ...string) table.Row {
	row := make(table.Row, 0, len(names))
	for _, n := range names {
		row = append(row, f.paint(text.FgHiCyan, n))
	}
	return row
}

func (f *TableFormatter) yesNo(v bool) string {
	if v {
		return f.paint(text.FgGreen, "yes")
	}
	return f.paint(text.FgRed, "no")
}

func (f *TableFormatter) stepStatus(i int, plan binder.Plan, dryRun bool) string {
	switch {
	case dryRun:
		return f.paint(text.FgYellow, "planned")
	case i < plan.Applied:
		return f.paint(text.FgGreen, "done")
	case i == plan.Applied:
		return f.paint(text.FgRed, "failed")
	default:
		return "skipped"
	}
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(icon, message string) string {
	if f.options.Quiet {
		return message
	}
	return fmt.Sprintf("%s %s", f.paint(text.FgYellow, icon), f.paint(text.FgYellow, message))
}

// formatObjectData formats object data as sorted key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := f.createTable()
	t.AppendHeader(f.header("KEY", "VALUE"))
	for _, key := range keys {
		valueStr := text.Snip(strings.Join(strings.Fields(fmt.Sprintf("%v", data[key])), " "), maxValueWidth, "...")
		t.AppendRow(table.Row{f.paint(text.FgHiCyan, key), valueStr})
	}
	t.Render()
	return nil
}

// formatArrayData formats a list as numbered lines
func (f *TableFormatter) formatArrayData(data []string) error {
	if len(data) == 0 {
		return f.printf("%s\n", f.formatEmptyMessage("📋", "No items found"))
	}
	for i, item := range data {
		if err := f.printf("  %d. %s\n", i+1, item); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func driverLabel(driver string) string {
	if driver == "" {
		return "no driver"
	}
	return driver
}
