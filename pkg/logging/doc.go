// Package logging provides subsystem-tagged structured logging for passthru.
//
// The package wraps Go's slog text handler. Every entry carries the subsystem
// that produced it so that output from the reconciler, the bootloader
// backends, the device binder and the change log can be told apart in a
// single stream.
//
// # Usage Example
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Grub", "Updated %s", path)
//	logging.Debug("Binder", "Writing %s to %s", bdf, ctl)
//	logging.Warn("ChangeLog", "Starting with an empty log")
//	logging.Error("Bootstrap", err, "Failed to load configuration")
//
// # Log File
//
// NewFileWriter returns a size-rotated writer (lumberjack) that can be passed
// to InitForCLI, optionally combined with stderr through io.MultiWriter.
//
// # Audit Logging
//
// Mutations of host state are reported with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "file_modified",
//	    Target:  "/etc/default/grub",
//	    Outcome: "success",
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix and, when the
// systemd journal socket is available, mirrored to the journal with
// PASSTHRU_* fields.
//
// # Thread Safety
//
// All functions are safe for concurrent use.
package logging
