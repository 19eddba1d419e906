// Package pci resolves PCI device identities to their sysfs locations.
package pci

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"passthru/internal/effects"
	"passthru/internal/errdefs"
)

// DefaultSysfsRoot is where sysfs is mounted
const DefaultSysfsRoot = "/sys"

var bdfPattern = regexp.MustCompile(`^(?:([0-9a-fA-F]{4}):)?([0-9a-fA-F]{2}):([0-1][0-9a-fA-F])\.([0-7])$`)

// Device is a PCI function as seen through sysfs.
type Device struct {
	// BDF is the full domain:bus:device.function address, e.g. 0000:01:00.0.
	BDF string `json:"bdf" yaml:"bdf"`
	// Path is the sysfs directory of the device.
	Path string `json:"path" yaml:"path"`
	// Driver is the currently attached driver, empty if none.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
}

// HasDriver reports whether a driver is attached
func (d Device) HasDriver() bool {
	return d.Driver != ""
}

// NormalizeBDF validates a PCI address and returns it with an explicit
// lower-case domain.
func NormalizeBDF(bdf string) (string, error) {
	m := bdfPattern.FindStringSubmatch(strings.TrimSpace(bdf))
	if m == nil {
		return "", fmt.Errorf("%q is not a PCI address (dddd:bb:dd.f): %w", bdf, errdefs.ErrInvalidData)
	}
	domain := m[1]
	if domain == "" {
		domain = "0000"
	}
	return strings.ToLower(fmt.Sprintf("%s:%s:%s.%s", domain, m[2], m[3], m[4])), nil
}

// Lookup resolves bdf under sysfsRoot and reads its current driver.
func Lookup(fx effects.Effects, sysfsRoot, bdf string) (Device, error) {
	normalized, err := NormalizeBDF(bdf)
	if err != nil {
		return Device{}, err
	}
	if sysfsRoot == "" {
		sysfsRoot = DefaultSysfsRoot
	}

	dir := path.Join(sysfsRoot, "bus/pci/devices", normalized)
	exists, err := fx.Exists(dir)
	if err != nil {
		return Device{}, fmt.Errorf("failed to check %s: %w", dir, err)
	}
	if !exists {
		return Device{}, fmt.Errorf("PCI device %s: %w", normalized, errdefs.ErrNotFound)
	}

	dev := Device{BDF: normalized, Path: dir}
	driver, err := CurrentDriver(fx, dir)
	if err != nil {
		return Device{}, err
	}
	dev.Driver = driver
	return dev, nil
}

// CurrentDriver returns the basename of the driver symlink in a device
// directory, or an empty string if no driver is attached.
func CurrentDriver(fx effects.Effects, deviceDir string) (string, error) {
	target, err := fx.Readlink(path.Join(deviceDir, "driver"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read driver link of %s: %w", deviceDir, err)
	}
	return path.Base(target), nil
}
