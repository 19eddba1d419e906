package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.String())
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.SlogLevel())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": LevelDebug, "info": LevelInfo, "": LevelInfo, "warn": LevelWarn, "error": LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Info("Grub", "updated %s", "/etc/default/grub")
	Error("Binder", errors.New("permission denied"), "bind failed")

	output := buf.String()
	assert.Contains(t, output, "updated /etc/default/grub")
	assert.Contains(t, output, "subsystem=Grub")
	assert.Contains(t, output, `error="permission denied"`)
}

func TestCLILevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Debug("test", "debug message")
	Info("test", "info message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.Contains(t, output, "info message")
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	var sent []map[string]string
	origEnabled, origSend := journalEnabled, journalSend
	defer func() { journalEnabled, journalSend = origEnabled, origSend }()
	journalEnabled = func() bool { return true }
	journalSend = func(msg string, p journal.Priority, vars map[string]string) error {
		sent = append(sent, vars)
		assert.True(t, strings.HasPrefix(msg, "[AUDIT]"))
		assert.Equal(t, journal.PriWarning, p)
		return nil
	}

	Audit(AuditEvent{Action: "driver_bound", Target: "0000:01:00.0", Outcome: "failure", Detail: "no vfio-pci"})

	assert.Contains(t, buf.String(), "[AUDIT] action=driver_bound outcome=failure target=0000:01:00.0")
	require.Len(t, sent, 1)
	assert.Equal(t, "driver_bound", sent[0]["PASSTHRU_ACTION"])
	assert.Equal(t, "0000:01:00.0", sent[0]["PASSTHRU_TARGET"])
}

func TestAudit_NoJournal(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	origEnabled, origSend := journalEnabled, journalSend
	defer func() { journalEnabled, journalSend = origEnabled, origSend }()
	journalEnabled = func() bool { return false }
	journalSend = func(string, journal.Priority, map[string]string) error {
		t.Fatal("journal must not be used when disabled")
		return nil
	}

	Audit(AuditEvent{Action: "rollback", Outcome: "success"})
	assert.Contains(t, buf.String(), "[AUDIT] action=rollback outcome=success")
}

func TestAudit_JournalSwitchedOff(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	origEnabled, origSend := journalEnabled, journalSend
	defer func() { journalEnabled, journalSend = origEnabled, origSend }()
	defer SetJournal(true)
	journalEnabled = func() bool { return true }
	journalSend = func(string, journal.Priority, map[string]string) error {
		t.Fatal("journal must not be used when switched off")
		return nil
	}

	SetJournal(false)
	Audit(AuditEvent{Action: "module_loaded", Outcome: "success"})
	assert.Contains(t, buf.String(), "[AUDIT] action=module_loaded outcome=success")
}

func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "passthru.log")
	w, err := NewFileWriter(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	defer w.Close()

	InitForCLI(LevelInfo, w)
	Info("Bootstrap", "written to file")
	assert.FileExists(t, path)

	_, err = NewFileWriter(FileOptions{})
	assert.Error(t, err)
}
