// Package sysinfo detects the host properties that decide which bootloader
// backend and initramfs generator passthru drives.
package sysinfo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"passthru/internal/effects"
	"passthru/internal/kparams"
	"passthru/pkg/logging"
)

const subsystem = "SysInfo"

const secureBootVar = "/sys/firmware/efi/efivars/SecureBoot-8be4df61-93ca-11d2-aa0d-00e098032b8c"

// ESPCandidates are the mount points probed for an EFI system partition
var ESPCandidates = []string{"/boot/efi", "/boot", "/efi"}

// uname is a variable to allow mocking in tests
var uname = unix.Uname

// geteuid is a variable to allow mocking in tests
var geteuid = unix.Geteuid

// IsRoot reports whether the process runs with effective UID 0
func IsRoot() bool {
	return geteuid() == 0
}

// Detector reads host information through effects
type Detector struct {
	fx effects.Effects
}

// NewDetector creates a Detector
func NewDetector(fx effects.Effects) *Detector {
	return &Detector{fx: fx}
}

// Detect implements Provider. Individual probes that fail degrade to
// "unknown" values; only context cancellation is returned as an error.
func (d *Detector) Detect(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	cpuinfo := d.read("/proc/cpuinfo")
	osRelease := d.read("/etc/os-release")

	info := Info{
		Kernel:         d.kernel(),
		CPUVendor:      cpuVendor(cpuinfo),
		Virtualization: virtualization(cpuinfo),
		InitSystem:     d.initSystem(),
		Initramfs:      d.initramfs(),
		SecureBoot:     d.secureBoot(ctx),
		Distribution:   parseOSRelease(osRelease),
		ESP:            d.esp(),
	}
	info.Bootloader = d.bootloader(info.Distribution)

	logging.Debug(subsystem, "Detected %s", info.Summary())
	return info, nil
}

func (d *Detector) read(path string) string {
	data, err := d.fx.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn(subsystem, "Failed to read %s: %v", path, err)
		}
		return ""
	}
	return string(data)
}

func (d *Detector) exists(paths ...string) bool {
	for _, p := range paths {
		if ok, err := d.fx.Exists(p); err == nil && ok {
			return true
		}
	}
	return false
}

func (d *Detector) bootloader(distro *Distribution) Bootloader {
	if d.exists("/etc/default/grub") {
		return BootloaderGrub
	}
	if d.exists("/boot/efi/loader/loader.conf", "/boot/loader/loader.conf", "/efi/loader/loader.conf") {
		if distro != nil && distro.ID == "pop" {
			return BootloaderKernelstub
		}
		return BootloaderSystemdBoot
	}
	return BootloaderUnknown
}

func (d *Detector) esp() string {
	for _, candidate := range ESPCandidates {
		if d.exists(candidate + "/loader/entries") {
			return candidate
		}
	}
	return ""
}

func (d *Detector) kernel() Kernel {
	var u unix.Utsname
	release := ""
	if err := uname(&u); err == nil {
		release = unix.ByteSliceToString(u.Release[:])
	} else {
		release = strings.TrimSpace(d.read("/proc/sys/kernel/osrelease"))
	}
	if release == "" {
		release = "unknown"
	}
	return ParseKernelRelease(release)
}

func (d *Detector) initSystem() InitSystem {
	switch {
	case d.exists("/run/systemd/system"):
		return InitSystemd
	case d.exists("/run/openrc", "/lib/rc/init.d"):
		return InitOpenRC
	case d.exists("/etc/inittab"):
		return InitSysV
	default:
		return InitUnknown
	}
}

func (d *Detector) initramfs() InitramfsFamily {
	switch {
	case d.exists("/etc/mkinitcpio.conf"):
		return InitramfsMkinitcpio
	case d.exists("/etc/dracut.conf", "/etc/dracut.conf.d"):
		return InitramfsDracut
	case d.exists("/etc/booster.yaml", "/etc/booster.d"):
		return InitramfsBooster
	case d.exists("/etc/initramfs-tools"):
		return InitramfsInitramfsTools
	default:
		return InitramfsUnknown
	}
}

func (d *Detector) secureBoot(ctx context.Context) *bool {
	if _, err := d.fx.LookPath("mokutil"); err == nil {
		out, err := d.fx.Run(ctx, "mokutil", "--sb-state")
		if err == nil {
			state := strings.ToLower(string(out))
			switch {
			case strings.Contains(state, "secureboot enabled"):
				return boolPtr(true)
			case strings.Contains(state, "secureboot disabled"):
				return boolPtr(false)
			}
		}
	}

	data, err := d.fx.ReadFile(secureBootVar)
	if err == nil && len(data) > 4 {
		return boolPtr(data[len(data)-1] == 1)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// ParseKernelRelease splits a release such as 6.8.0-45-generic into numbers.
func ParseKernelRelease(release string) Kernel {
	k := Kernel{Release: release}
	parts := strings.SplitN(release, ".", 3)
	if len(parts) > 0 {
		k.Major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		k.Minor, _ = strconv.Atoi(leadingDigits(parts[1]))
	}
	if len(parts) > 2 {
		k.Patch, _ = strconv.Atoi(leadingDigits(parts[2]))
	}
	return k
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func cpuVendor(cpuinfo string) string {
	for _, line := range strings.Split(cpuinfo, "\n") {
		if !strings.HasPrefix(line, "vendor_id") {
			continue
		}
		switch {
		case strings.Contains(line, "AuthenticAMD"):
			return kparams.VendorAMD
		case strings.Contains(line, "GenuineIntel"):
			return kparams.VendorIntel
		}
		if _, v, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(v)
		}
		break
	}
	return "Unknown"
}

func virtualization(cpuinfo string) bool {
	for _, line := range strings.Split(cpuinfo, "\n") {
		if strings.HasPrefix(line, "flags") {
			_, flags, _ := strings.Cut(line, ":")
			for _, f := range strings.Fields(flags) {
				if f == "svm" || f == "vmx" {
					return true
				}
			}
			return false
		}
	}
	return false
}

func parseOSRelease(content string) *Distribution {
	fields := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewBufferString(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	if fields["NAME"] == "" {
		return nil
	}

	return &Distribution{
		Name:    fields["NAME"],
		Version: fields["VERSION"],
		ID:      fields["ID"],
		IDLike:  fields["ID_LIKE"],
		Family:  Family(fields["ID"], fields["ID_LIKE"]),
	}
}

// Family maps os-release ID and ID_LIKE onto a distribution family. ID_LIKE
// entries are checked first; an unmatched distribution is its own family.
func Family(id, idLike string) string {
	for _, candidate := range append(strings.Fields(idLike), id) {
		switch candidate {
		case "arch", "garuda", "manjaro", "endeavouros":
			return FamilyArch
		case "debian", "ubuntu", "linuxmint", "pop", "elementary":
			return FamilyDebian
		case "fedora", "rhel", "centos", "rocky", "alma", "almalinux":
			return FamilyFedora
		case "opensuse", "suse", "opensuse-tumbleweed", "opensuse-leap", "tumbleweed", "leap":
			return FamilySuse
		case "gentoo":
			return FamilyGentoo
		}
	}
	return id
}
