package kparams

import (
	"fmt"
	"sort"
	"strings"

	"passthru/internal/errdefs"
)

// CPU vendors as reported by /proc/cpuinfo
const (
	VendorAMD   = "AMD"
	VendorIntel = "Intel"
)

// IOMMUParameters returns the parameters enabling IOMMU passthrough for a CPU
// vendor.
func IOMMUParameters(vendor string) ([]string, error) {
	switch vendor {
	case VendorAMD:
		return []string{"amd_iommu=on", "iommu=pt"}, nil
	case VendorIntel:
		return []string{"intel_iommu=on", "iommu=pt"}, nil
	default:
		return nil, fmt.Errorf("IOMMU parameters for CPU vendor %q: %w", vendor, errdefs.ErrNotSupported)
	}
}

// VFIOIDs builds the vfio-pci.ids parameter claiming the given vendor:device
// ids at boot.
func VFIOIDs(ids []string) (string, error) {
	normalized, err := NormalizeIDs(ids)
	if err != nil {
		return "", err
	}
	return "vfio-pci.ids=" + strings.Join(normalized, ","), nil
}

// NormalizeIDs validates vendor:device ids and returns them lower-cased,
// de-duplicated and sorted. An empty list is invalid.
func NormalizeIDs(ids []string) ([]string, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if !validID(id) {
			return nil, fmt.Errorf("device id %q is not vendor:device: %w", id, errdefs.ErrInvalidData)
		}
		set[id] = true
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no device ids: %w", errdefs.ErrInvalidData)
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func validID(id string) bool {
	vendor, device, ok := strings.Cut(id, ":")
	return ok && isHex4(vendor) && isHex4(device)
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
