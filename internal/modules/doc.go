// Package modules maintains the kernel module configuration that makes
// vfio-pci claim devices at boot, and regenerates the initramfs so the
// configuration takes effect before the graphics drivers load.
//
// Two files are managed:
//
//   - <modprobe.d>/vfio.conf: one "options vfio-pci ids=..." line plus
//     "softdep <driver> pre: vfio-pci" lines for the common GPU drivers
//   - <modules-load.d>/vfio-pci-load.conf: the vfio modules loaded early
//
// Configure is idempotent. Files that are already up to date are not
// rewritten, and every rewritten file is backed up first so the caller can
// record a reversible change.
package modules
