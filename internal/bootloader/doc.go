// Package bootloader reads and edits the kernel command line of the installed
// bootloader.
//
// A Backend is a tagged variant: Kind selects between GRUB (a single inline
// variable in /etc/default/grub), kernelstub (an external tool that owns the
// configuration) and systemd-boot (one options line per loader entry). Every
// operation switches exhaustively on Kind and fails with
// errdefs.ErrNotSupported for anything else.
//
// # Core Components
//
//   - Parameters: current command line of the backend
//   - AddParameters / RemoveParameters: reconcile through kparams, back up,
//     then write
//   - CreateBackup: timestamped copies of every edited file
//   - Activate: regenerate the boot configuration (update-grub and friends)
//
// # Usage Example
//
//	b := bootloader.New(bootloader.KindGrub, effects.NewOS(), bootloader.Options{})
//	res, err := b.AddParameters(ctx, []string{"amd_iommu=on", "iommu=pt"}, false)
//	if err != nil {
//	    return err
//	}
//	if res.Changed {
//	    err = b.Activate(ctx, false)
//	}
//
// Writing never regenerates the boot configuration; callers decide when to
// Activate so that several edits cost a single regeneration.
package bootloader
