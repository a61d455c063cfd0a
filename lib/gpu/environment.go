// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import "fmt"

// DriverFamily is the closed classification of a GPU's kernel driver,
// resolved once per device. The launch environment is keyed on the
// family, not on ad hoc driver-name comparisons scattered through the
// code.
type DriverFamily uint8

const (
	// DriverUnknown is any driver not otherwise recognized,
	// including an unbound device. Unknown drivers get the generic
	// render-offload environment.
	DriverUnknown DriverFamily = iota

	// DriverOpenSource is a mainline kernel DRM driver that
	// participates in the generic DRI_PRIME render-offload selector.
	DriverOpenSource

	// DriverNVIDIAProprietary is the closed-source NVIDIA kernel
	// driver. It ignores DRI_PRIME and needs vendor-specific GL and
	// Vulkan switches instead.
	DriverNVIDIAProprietary
)

// openSourceDrivers are the mainline DRM drivers handled by the Mesa
// loader's DRI_PRIME selector. The set only affects the reported
// family: unknown drivers resolve to the same environment.
var openSourceDrivers = map[string]bool{
	"i915":       true,
	"xe":         true,
	"amdgpu":     true,
	"radeon":     true,
	"nouveau":    true,
	"vc4":        true,
	"v3d":        true,
	"panfrost":   true,
	"lima":       true,
	"etnaviv":    true,
	"msm":        true,
	"virtio_gpu": true,
}

// FamilyForDriver maps a kernel driver name to its [DriverFamily].
func FamilyForDriver(driver string) DriverFamily {
	switch {
	case driver == "nvidia":
		return DriverNVIDIAProprietary
	case openSourceDrivers[driver]:
		return DriverOpenSource
	default:
		return DriverUnknown
	}
}

// String returns the family name for logs.
func (f DriverFamily) String() string {
	switch f {
	case DriverOpenSource:
		return "open-source"
	case DriverNVIDIAProprietary:
		return "nvidia-proprietary"
	case DriverUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// ResolveEnvironment computes the ordered environment variables that
// route a launched process onto the GPU identified by pathTag.
//
// The proprietary NVIDIA driver does not participate in the generic
// DRI_PRIME offload selector: it needs the vendor GLX library switch,
// its own render-offload flag, and an explicit Vulkan layer selection,
// in that order. Every other family — including unrecognized drivers —
// falls back to the single DRI_PRIME pair. An empty path tag yields an
// empty environment: without a stable selector value there is nothing
// useful to export.
func ResolveEnvironment(family DriverFamily, pathTag string) []EnvVar {
	if family == DriverNVIDIAProprietary {
		return []EnvVar{
			{Key: "__GLX_VENDOR_LIBRARY_NAME", Value: "nvidia"},
			{Key: "__NV_PRIME_RENDER_OFFLOAD", Value: "1"},
			{Key: "__VK_LAYER_NV_optimus", Value: "NVIDIA_only"},
		}
	}
	if pathTag == "" {
		return nil
	}
	return []EnvVar{{Key: "DRI_PRIME", Value: pathTag}}
}
