package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/journal"
)

// AuditEvent describes a mutation of host state.
type AuditEvent struct {
	Action  string // e.g. "kernel_param_added", "driver_bound", "rollback"
	Target  string // file path, BDF or bootloader name
	Outcome string // "success", "failure", "dry_run"
	Detail  string
}

// journalEnabled and journalSend are variables to allow mocking in tests
var (
	journalEnabled = journal.Enabled
	journalSend    = journal.Send
)

var journalDisabled atomic.Bool

// SetJournal turns the journald mirror of audit events on or off
func SetJournal(enabled bool) {
	journalDisabled.Store(!enabled)
}

// Audit logs an audit event at INFO level with an [AUDIT] prefix. When the
// systemd journal is reachable the event is mirrored there with structured
// fields so `journalctl PASSTHRU_ACTION=...` finds it.
func Audit(event AuditEvent) {
	var b strings.Builder
	fmt.Fprintf(&b, "[AUDIT] action=%s outcome=%s", event.Action, event.Outcome)
	if event.Target != "" {
		fmt.Fprintf(&b, " target=%s", event.Target)
	}
	if event.Detail != "" {
		fmt.Fprintf(&b, " detail=%q", event.Detail)
	}
	msg := b.String()

	Info("Audit", "%s", msg)

	if journalDisabled.Load() || !journalEnabled() {
		return
	}
	priority := journal.PriInfo
	if event.Outcome == "failure" {
		priority = journal.PriWarning
	}
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": "passthru",
		"PASSTHRU_ACTION":   event.Action,
		"PASSTHRU_OUTCOME":  event.Outcome,
	}
	if event.Target != "" {
		vars["PASSTHRU_TARGET"] = event.Target
	}
	if err := journalSend(msg, priority, vars); err != nil {
		Debug("Audit", "Failed to mirror audit event to journal: %v", err)
	}
}
