package sysinfo

import (
	"context"
	"fmt"
)

// Bootloader identifies how kernel parameters are persisted
type Bootloader string

const (
	BootloaderGrub        Bootloader = "grub"
	BootloaderKernelstub  Bootloader = "kernelstub"
	BootloaderSystemdBoot Bootloader = "systemd-boot"
	BootloaderUnknown     Bootloader = "unknown"
)

// InitramfsFamily identifies the initramfs generator
type InitramfsFamily string

const (
	InitramfsMkinitcpio     InitramfsFamily = "mkinitcpio"
	InitramfsDracut         InitramfsFamily = "dracut"
	InitramfsBooster        InitramfsFamily = "booster"
	InitramfsInitramfsTools InitramfsFamily = "initramfs-tools"
	InitramfsUnknown        InitramfsFamily = "unknown"
)

// InitSystem identifies PID 1
type InitSystem string

const (
	InitSystemd InitSystem = "systemd"
	InitOpenRC  InitSystem = "openrc"
	InitSysV    InitSystem = "sysvinit"
	InitUnknown InitSystem = "unknown"
)

// Distro families
const (
	FamilyArch   = "arch"
	FamilyDebian = "debian"
	FamilyFedora = "fedora"
	FamilySuse   = "suse"
	FamilyGentoo = "gentoo"
)

// Kernel describes the running kernel release
type Kernel struct {
	Release string `json:"release" yaml:"release"`
	Major   int    `json:"major" yaml:"major"`
	Minor   int    `json:"minor" yaml:"minor"`
	Patch   int    `json:"patch" yaml:"patch"`
}

// Distribution is the parsed content of /etc/os-release
type Distribution struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	ID      string `json:"id" yaml:"id"`
	IDLike  string `json:"id_like,omitempty" yaml:"id_like,omitempty"`
	Family  string `json:"family" yaml:"family"`
}

// Info is everything passthru needs to know about the host
type Info struct {
	Bootloader     Bootloader      `json:"bootloader" yaml:"bootloader"`
	Kernel         Kernel          `json:"kernel" yaml:"kernel"`
	CPUVendor      string          `json:"cpu_vendor" yaml:"cpu_vendor"`
	Virtualization bool            `json:"virtualization" yaml:"virtualization"`
	InitSystem     InitSystem      `json:"init_system" yaml:"init_system"`
	Initramfs      InitramfsFamily `json:"initramfs" yaml:"initramfs"`
	SecureBoot     *bool           `json:"secure_boot,omitempty" yaml:"secure_boot,omitempty"`
	Distribution   *Distribution   `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	ESP            string          `json:"esp,omitempty" yaml:"esp,omitempty"`
}

// Summary returns a short human readable description
func (i Info) Summary() string {
	distro := "unknown"
	if i.Distribution != nil {
		distro = fmt.Sprintf("%s (%s)", i.Distribution.Name, i.Distribution.Family)
	}
	return fmt.Sprintf("%s kernel %s, %s bootloader, %s CPU", distro, i.Kernel.Release, i.Bootloader, i.CPUVendor)
}

// Provider supplies host information. Detector reads it from the host;
// Static returns a fixed value.
type Provider interface {
	Detect(ctx context.Context) (Info, error)
}

// Static is a Provider returning a fixed Info
type Static struct {
	Info Info
}

// Detect implements Provider
func (s Static) Detect(context.Context) (Info, error) {
	return s.Info, nil
}
