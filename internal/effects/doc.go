// Package effects provides the host abstraction for passthru.
//
// Every component that reads configuration files, writes sysfs control files
// or runs external tools does so through the Effects interface. This keeps the
// components deterministic under test and makes every host interaction
// visible in one place.
//
// # Core Components
//
// Effects: Interface that abstracts host operations
//   - ReadFile / WriteFile: Configuration file access (writes go through a
//     temporary file and a rename)
//   - WriteControl: Write-only access to existing sysfs control files
//   - Exists / ReadDir / Readlink: Inspection of files, directories and links
//   - Rename / Remove / MkdirAll: Filesystem mutations used by backup and undo
//   - LookPath / Run: External tool discovery and blocking execution
//   - Now / Sleep: Clock access for backup names and settle delays
//
// OS: Implementation backed by the os and os/exec packages.
//
// fake.Host (subpackage fake): In-memory implementation recording every write
// and command for assertions.
//
// # Usage Example
//
//	fx := effects.NewOS()
//	out, err := fx.Run(ctx, "update-grub")
//	if err != nil {
//	    var cmdErr *errdefs.CommandError
//	    if errors.As(err, &cmdErr) {
//	        log.Printf("exit status %d", cmdErr.ExitCode)
//	    }
//	}
//
// # Error Handling
//
//   - Missing files match fs.ErrNotExist
//   - Missing tools and control files match errdefs.ErrNotFound
//   - Non-zero exits are returned as *errdefs.CommandError
//
// # Thread Safety
//
// OS holds no state. The fake implementation is guarded by a mutex but
// passthru itself drives effects from a single goroutine.
package effects
