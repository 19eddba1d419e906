package changelog

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"passthru/pkg/logging"
)

// shquote wraps s in single quotes for bash, escaping embedded quotes
func shquote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

const cleanupTemplate = `#!/bin/bash
# Cleanup script generated by passthru on {{ dateInZone "2006-01-02 15:04:05" .GeneratedAt "UTC" }} UTC
# from {{ .LogPath }} ({{ len .Steps }} {{ if eq (len .Steps) 1 }}change{{ else }}changes{{ end }}).
# Run as root to revert the recorded changes, newest first.
# Every step checks its preconditions, so the script can be run again.

set -e
{{ range .Steps }}
# {{ .Change.Describe }}
{{- if eq .Kind "file_modified" }}{{ template "file" .Change }}
{{- else if eq .Kind "kernel_param_added" }}{{ template "param" (dict "Verb" "Remove" "Flag" "-d" "Param" .Change.Parameter "Bootloader" .Change.Bootloader) }}
{{- else if eq .Kind "kernel_param_removed" }}{{ template "param" (dict "Verb" "Restore" "Flag" "-a" "Param" (.Change.OriginalValue | default .Change.Parameter) "Bootloader" .Change.Bootloader) }}
{{- else if eq .Kind "module_loaded" }}{{ template "module" .Change }}
{{- else }}{{ template "driver" . }}
{{- end }}
{{ end }}
echo 'Cleanup script finished.'
{{- define "file" }}
if [ -f {{ shquote .BackupPath }} ]; then
  echo {{ printf "Restoring backup %s to %s" .BackupPath .Path | shquote }}
  cp -f {{ shquote .BackupPath }} {{ shquote .Path }} && rm -f {{ shquote .BackupPath }} || echo {{ printf "Error restoring %s" .Path | shquote }}
else
  echo {{ printf "Backup file %s not found, cannot restore %s" .BackupPath .Path | shquote }}
fi
{{- end }}
{{- define "param" }}
{{- if eq .Bootloader "kernelstub" }}
if command -v kernelstub >/dev/null 2>&1; then
  kernelstub {{ .Flag }} {{ shquote .Param }} || echo {{ printf "Error running kernelstub %s %s" .Flag .Param | shquote }}
else
  echo {{ printf "Manual action needed: %s kernel parameter '%s' for %s bootloader and update" .Verb .Param .Bootloader | shquote }}
fi
{{- else }}
echo {{ printf "Manual action needed: %s kernel parameter '%s' for %s bootloader and update" .Verb .Param .Bootloader | shquote }}
{{- end }}
{{- end }}
{{- define "module" }}
{{- if .BackupPath }}
if [ -f {{ shquote .BackupPath }} ]; then
  echo {{ printf "Restoring backup %s to %s" .BackupPath .ConfigPath | shquote }}
  mv -f {{ shquote .BackupPath }} {{ shquote .ConfigPath }} || echo {{ printf "Error restoring %s" .ConfigPath | shquote }}
else
  echo {{ printf "Backup file %s not found, leaving %s in place" .BackupPath .ConfigPath | shquote }}
fi
{{- else }}
rm -f {{ shquote .ConfigPath }} || echo {{ printf "Error removing %s" .ConfigPath | shquote }}
{{- end }}
{{- end }}
{{- define "driver" }}
{{- $bdf := .Change.DeviceBDF }}
{{- $dev := printf "/sys/bus/pci/devices/%s" $bdf }}
{{- with .Change.OriginalDriver }}
if [ ! -e {{ shquote $dev }} ]; then
  echo {{ printf "Device %s not present, skipping" $bdf | shquote }}
elif [ "$(basename "$(readlink {{ shquote (printf "%s/driver" $dev) }} 2>/dev/null)")" = {{ shquote . }} ]; then
  echo {{ printf "Device %s already bound to %s" $bdf . | shquote }}
else
  echo {{ printf "Rebinding %s to driver %s" $bdf . | shquote }}
  echo > {{ shquote (printf "%s/driver_override" $dev) }} 2>/dev/null || true
  if [ -e {{ shquote (printf "%s/driver" $dev) }} ]; then
    echo {{ shquote $bdf }} > {{ shquote (printf "%s/driver/unbind" $dev) }} 2>/dev/null || true
    sleep 0.1
  fi
  echo {{ shquote $bdf }} > {{ shquote (printf "/sys/bus/pci/drivers/%s/bind" .) }} 2>/dev/null \
    || echo {{ shquote $bdf }} > /sys/bus/pci/drivers_probe 2>/dev/null \
    || echo {{ printf "Failed to rebind %s" $bdf | shquote }}
fi
{{- else }}
echo {{ printf "Original driver for %s unknown, cannot automatically rebind. May need manual rebind or reboot." $bdf | shquote }}
{{- end }}
{{- end }}
`

type scriptStep struct {
	Kind   string
	Change Change
}

type scriptData struct {
	GeneratedAt time.Time
	LogPath     string
	Steps       []scriptStep
}

var scriptTemplate = template.Must(template.New("cleanup").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{"shquote": shquote}).
	Parse(cleanupTemplate))

// CleanupScript renders a bash script that performs the same undo as
// RollbackAll, newest change first, without needing passthru installed.
func (l *Log) CleanupScript() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := scriptData{
		GeneratedAt: l.fx.Now().UTC(),
		LogPath:     l.path,
	}
	for i := len(l.records) - 1; i >= 0; i-- {
		change := l.records[i].Change
		data.Steps = append(data.Steps, scriptStep{Kind: string(change.Kind()), Change: change})
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render cleanup script: %w", err)
	}

	logging.Info(subsystem, "Generated cleanup script for %d changes", len(data.Steps))
	return buf.String(), nil
}
