// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

// RawDevice is the attribute bag delivered by the device source for
// one enumerated adapter. It is ephemeral: it exists only for the
// duration of classification and is never stored.
type RawDevice struct {
	// Subsystem is the bus subsystem of the adapter device ("pci",
	// "platform"). The virtual "ttm" memory-manager subsystem also
	// shows up here and is rejected by classification.
	Subsystem string

	// Driver is the kernel driver bound to the device ("i915",
	// "nvidia", "vc4"). Empty when no driver is bound.
	Driver string

	// PCIClass is the PCI class code as found in the device uevent
	// file: bare hex without a 0x prefix, e.g. "30000" for a VGA
	// controller. Empty for non-PCI buses.
	PCIClass string

	// PCIID is the "VVVV:DDDD" vendor:device identifier from the
	// device uevent file, case-insensitive hex. Empty for non-PCI
	// buses.
	PCIID string

	// BootVGA is the raw boot_vga attribute value. Exactly "1" marks
	// the adapter that initialized the display at firmware boot.
	BootVGA string

	// Path is the sysfs device path. Diagnostics only; identity is
	// carried by PathTag.
	Path string

	// PathTag is the stable, normalized bus-location tag ("pci-
	// 0000_00_02_0", "platform-soc_gpu"). It is the registry key and
	// the DRI_PRIME selector value.
	PathTag string

	// VendorName and ModelName are optional descriptive strings
	// supplied by the device source (fixture files, attribute
	// overrides). When present they take precedence over the PCI
	// name database.
	VendorName string
	ModelName  string

	// DRMNodes are the names of the DRM children discovered under
	// the device ("card0", "renderD128"). Classification requires at
	// least one render node.
	DRMNodes []string
}

// HasRenderNode reports whether the device carries at least one DRM
// render node child. Adapters without a render node cannot be used
// for render offload and never classify as GPUs.
func (d RawDevice) HasRenderNode() bool {
	for _, node := range d.DRMNodes {
		if len(node) > 7 && node[:7] == "renderD" {
			return true
		}
	}
	return false
}

// EnvVar is one environment variable to apply to a process launched
// on a specific GPU. Order within an environment is significant.
type EnvVar struct {
	Key   string
	Value string
}

// GPU is the durable record owned by the [Registry].
type GPU struct {
	// Vendor and Device are the PCI identity as lowercase hex
	// ("8086", "5917"). Both empty for non-PCI buses; the driver
	// name alone identifies those downstream.
	Vendor string
	Device string

	// Driver is the kernel driver name. Family is the closed driver
	// classification derived from it once, at classification time.
	Driver string
	Family DriverFamily

	// PathTag is the unique registry key and hotplug identity.
	PathTag string

	// Name is the resolved display name. Never empty: resolution
	// falls back to [FallbackName].
	Name string

	// Default is true for the system's boot/primary video device.
	// The registry maintains at most one default at a time.
	Default bool

	// Environment is the ordered list of variables that route a
	// launched process onto this GPU.
	Environment []EnvVar
}

// Snapshot is the immutable derived view of the registry, recomputed
// after every mutation and handed to the publish boundary. GPUs are
// ordered with non-default entries first, most recently discovered
// first, and the default entry last.
type Snapshot struct {
	HasDualGPU bool
	NumGPUs    int
	GPUs       []GPU
}

// Reason says what kind of mutation produced a snapshot.
type Reason string

const (
	// ReasonSeed is the single publish after the initial device scan.
	ReasonSeed Reason = "seed"

	// ReasonAdd and ReasonRemove are hotplug transitions from the
	// event stream.
	ReasonAdd    Reason = "add"
	ReasonRemove Reason = "remove"

	// ReasonResync marks mutations discovered by a full rescan
	// rather than an event.
	ReasonResync Reason = "resync"
)

// Change describes the mutation behind a publish. PathTag names the
// adapter that changed; it is empty for the seed publish, which
// covers the whole initial set at once.
type Change struct {
	Reason  Reason
	PathTag string
}

// Publisher receives a freshly computed snapshot after each registry
// mutation. Implementations must not retain or mutate the snapshot's
// slices beyond the call; the registry hands out private copies.
type Publisher interface {
	PublishState(Snapshot, Change)
}

// NameDB resolves a PCI vendor:device identity to human-readable
// vendor and model names. Lookups are best-effort; a miss is reported
// through ok, never an error.
type NameDB interface {
	LookupPCI(vendor, device string) (vendorName, modelName string, ok bool)
}
