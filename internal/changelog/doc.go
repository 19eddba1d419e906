// Package changelog records every mutation passthru applies to the host and
// undoes them.
//
// The log is an ordered, append-only sequence of Change values persisted as
// one JSON document after every append:
//
//	[
//	  {"id": "…", "kind": "file_modified", "recorded_at": "…",
//	   "change": {"path": "/etc/default/grub", "backup_path": "/etc/default/grub.backup_20240517_103000"}}
//	]
//
// # Core Components
//
//   - Open / Record / Clear: load, append and discard records
//   - RollbackAll: undo newest first, continue past failures, aggregate them
//     into an *errdefs.PartialFailure and keep the failed records
//   - CleanupScript: a bash rendition of the same undo for use without
//     passthru
//
// # Lifecycle
//
//	Empty -> Recording -> Draining -> Empty | PartiallyFailed
//
// # Usage Example
//
//	log, err := changelog.Open(fx, changelog.DefaultPath)
//	if err != nil {
//	    return err
//	}
//	backupPath, _ := backup.Create(fx, path)
//	// write path ...
//	err = log.Record(changelog.FileModified{Path: path, BackupPath: backupPath})
//
// Callers keep the order backup, then write, then record: a change is only
// recorded once it is confirmed applied.
package changelog
