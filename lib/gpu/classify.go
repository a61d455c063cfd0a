// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"strconv"
	"strings"
)

// pciDisplayClass is the PCI base class for display controllers. The
// full class code is three bytes (base, subclass, prog-if), so VGA
// (0x030000), 3D (0x030200), and "other display" (0x038000)
// controllers all share this high byte.
const pciDisplayClass = 0x03

// platformGPUDrivers are the kernel drivers for platform-bus (non-PCI)
// GPUs, typically ARM SoCs. A platform device only classifies as a GPU
// when bound to one of these.
var platformGPUDrivers = map[string]bool{
	"vc4":       true,
	"v3d":       true,
	"panfrost":  true,
	"lima":      true,
	"etnaviv":   true,
	"msm":       true,
	"meson":     true,
	"rockchip":  true,
	"sun4i-drm": true,
	"tegra":     true,
}

// Classify decides whether a raw device represents a GPU and, if so,
// derives its durable record: PCI identity, driver family, path tag,
// launch environment, and the boot/primary designation. The display
// name is left empty; name resolution is a separate step with its own
// inputs (see [ResolveName]).
//
// Classification is deliberately tolerant. Anything that disqualifies
// the device — the virtual ttm subsystem, a non-display PCI class, an
// unrecognized platform driver, a missing render node or path tag —
// makes Classify report false. It never fails; noisy or incomplete
// hardware metadata must not take the daemon down.
func Classify(device RawDevice) (GPU, bool) {
	// ttm is the shared memory-manager subsystem. Its node appears in
	// the device tree next to real adapters but is not one.
	if device.Subsystem == "ttm" {
		return GPU{}, false
	}

	if !device.HasRenderNode() {
		return GPU{}, false
	}

	// The path tag doubles as the registry key and the DRI_PRIME
	// selector; a device without a stable bus location cannot be
	// tracked across hotplug events.
	if device.PathTag == "" {
		return GPU{}, false
	}

	var vendor, deviceID string
	switch device.Subsystem {
	case "pci":
		if !isDisplayClass(device.PCIClass) {
			return GPU{}, false
		}
		vendor, deviceID = parsePCIID(device.PCIID)
	case "platform":
		if !platformGPUDrivers[device.Driver] {
			return GPU{}, false
		}
	default:
		return GPU{}, false
	}

	family := FamilyForDriver(device.Driver)
	return GPU{
		Vendor:      vendor,
		Device:      deviceID,
		Driver:      device.Driver,
		Family:      family,
		PathTag:     device.PathTag,
		Default:     device.BootVGA == "1",
		Environment: ResolveEnvironment(family, device.PathTag),
	}, true
}

// isDisplayClass reports whether the raw PCI class code (bare hex, as
// found in the uevent file) has the display-controller base class.
func isDisplayClass(raw string) bool {
	class, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return false
	}
	return class>>16 == pciDisplayClass
}

// parsePCIID splits a "VVVV:DDDD" identifier into lowercase hex vendor
// and device IDs. A missing or malformed identifier yields empty IDs:
// platform GPUs have none, and a garbled one downgrades the record to
// driver-only identity rather than disqualifying the device.
func parsePCIID(raw string) (vendor, device string) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	vendor = strings.ToLower(strings.TrimSpace(parts[0]))
	device = strings.ToLower(strings.TrimSpace(parts[1]))
	if !isHex(vendor) || !isHex(device) {
		return "", ""
	}
	return vendor, device
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, character := range s {
		switch {
		case character >= '0' && character <= '9':
		case character >= 'a' && character <= 'f':
		default:
			return false
		}
	}
	return true
}
