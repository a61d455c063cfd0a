// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSyntheticFile creates a file at the given path within root,
// creating parent directories as needed.
func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}
}

// adapterSpec describes one synthetic adapter for test sysfs trees.
type adapterSpec struct {
	// rel is the adapter directory relative to the sysfs root, e.g.
	// "devices/pci0000:00/0000:00:02.0".
	rel       string
	subsystem string
	driver    string
	uevent    string
	bootVGA   string
	nodes     []string
}

// addAdapter builds the adapter directory, its DRM minors, and the
// class/drm entries pointing back at it. Returns the adapter's
// resolved path.
func addAdapter(t *testing.T, sysRoot string, spec adapterSpec) string {
	t.Helper()

	adapterPath := filepath.Join(sysRoot, spec.rel)
	if err := os.MkdirAll(adapterPath, 0o755); err != nil {
		t.Fatalf("mkdir adapter: %v", err)
	}
	if spec.uevent != "" {
		writeSyntheticFile(t, adapterPath, "uevent", spec.uevent)
	}
	if spec.bootVGA != "" {
		writeSyntheticFile(t, adapterPath, "boot_vga", spec.bootVGA+"\n")
	}

	if spec.subsystem != "" {
		busDir := filepath.Join(sysRoot, "bus", spec.subsystem)
		if err := os.MkdirAll(busDir, 0o755); err != nil {
			t.Fatalf("mkdir bus: %v", err)
		}
		if err := os.Symlink(busDir, filepath.Join(adapterPath, "subsystem")); err != nil {
			t.Fatalf("symlink subsystem: %v", err)
		}
	}
	if spec.driver != "" {
		driverDir := filepath.Join(sysRoot, "bus", spec.subsystem, "drivers", spec.driver)
		if err := os.MkdirAll(driverDir, 0o755); err != nil {
			t.Fatalf("mkdir driver: %v", err)
		}
		if err := os.Symlink(driverDir, filepath.Join(adapterPath, "driver")); err != nil {
			t.Fatalf("symlink driver: %v", err)
		}
	}

	classBase := filepath.Join(sysRoot, "class/drm")
	if err := os.MkdirAll(classBase, 0o755); err != nil {
		t.Fatalf("mkdir class/drm: %v", err)
	}
	for _, node := range spec.nodes {
		if err := os.MkdirAll(filepath.Join(adapterPath, "drm", node), 0o755); err != nil {
			t.Fatalf("mkdir minor: %v", err)
		}
		minorClass := filepath.Join(classBase, node)
		if err := os.MkdirAll(minorClass, 0o755); err != nil {
			t.Fatalf("mkdir class minor: %v", err)
		}
		if err := os.Symlink(adapterPath, filepath.Join(minorClass, "device")); err != nil {
			t.Fatalf("symlink device: %v", err)
		}
	}
	return adapterPath
}

func intelAdapter() adapterSpec {
	return adapterSpec{
		rel:       "devices/pci0000:00/0000:00:02.0",
		subsystem: "pci",
		driver:    "i915",
		uevent: "DRIVER=i915\n" +
			"PCI_CLASS=30000\n" +
			"PCI_ID=8086:5917\n" +
			"PCI_SUBSYS_ID=1028:081C\n" +
			"PCI_SLOT_NAME=0000:00:02.0\n" +
			"MODALIAS=pci:v00008086d00005917sv00001028sd0000081Cbc03sc00i00\n",
		bootVGA: "1",
		nodes:   []string{"card0", "renderD128"},
	}
}

func nvidiaAdapter() adapterSpec {
	return adapterSpec{
		rel:       "devices/pci0000:00/0000:01:00.0",
		subsystem: "pci",
		driver:    "nvidia",
		uevent: "DRIVER=nvidia\n" +
			"PCI_CLASS=30200\n" +
			"PCI_ID=10DE:1C8D\n" +
			"PCI_SLOT_NAME=0000:01:00.0\n",
		nodes: []string{"card1", "renderD129"},
	}
}

func deviceByTag(t *testing.T, devices []gpu.RawDevice, tag string) gpu.RawDevice {
	t.Helper()
	for _, device := range devices {
		if device.PathTag == tag {
			return device
		}
	}
	t.Fatalf("no device with tag %q in %+v", tag, devices)
	panic("unreachable")
}

func TestScanDualGPULaptop(t *testing.T) {
	sysRoot := t.TempDir()
	addAdapter(t, sysRoot, intelAdapter())
	addAdapter(t, sysRoot, nvidiaAdapter())

	devices, err := newScannerAt(sysRoot).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Scan returned %d devices, want 2", len(devices))
	}

	intel := deviceByTag(t, devices, "pci-0000_00_02_0")
	if intel.Subsystem != "pci" {
		t.Errorf("intel Subsystem = %q, want pci", intel.Subsystem)
	}
	if intel.Driver != "i915" {
		t.Errorf("intel Driver = %q, want i915", intel.Driver)
	}
	if intel.PCIClass != "30000" {
		t.Errorf("intel PCIClass = %q, want 30000", intel.PCIClass)
	}
	if intel.PCIID != "8086:5917" {
		t.Errorf("intel PCIID = %q, want 8086:5917", intel.PCIID)
	}
	if intel.BootVGA != "1" {
		t.Errorf("intel BootVGA = %q, want 1", intel.BootVGA)
	}
	if !reflect.DeepEqual(intel.DRMNodes, []string{"card0", "renderD128"}) {
		t.Errorf("intel DRMNodes = %v", intel.DRMNodes)
	}

	nvidia := deviceByTag(t, devices, "pci-0000_01_00_0")
	if nvidia.Driver != "nvidia" {
		t.Errorf("nvidia Driver = %q, want nvidia", nvidia.Driver)
	}
	if nvidia.BootVGA != "" {
		t.Errorf("nvidia BootVGA = %q, want empty (no boot_vga attribute)", nvidia.BootVGA)
	}
	if !reflect.DeepEqual(nvidia.DRMNodes, []string{"card1", "renderD129"}) {
		t.Errorf("nvidia DRMNodes = %v", nvidia.DRMNodes)
	}
}

func TestScanPlatformAdapter(t *testing.T) {
	sysRoot := t.TempDir()
	addAdapter(t, sysRoot, adapterSpec{
		rel:       "devices/platform/soc/soc:gpu",
		subsystem: "platform",
		driver:    "vc4",
		uevent:    "DRIVER=vc4\nOF_FULLNAME=/soc/gpu\n",
		nodes:     []string{"card0", "renderD128"},
	})

	devices, err := newScannerAt(sysRoot).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Scan returned %d devices, want 1", len(devices))
	}

	device := devices[0]
	if device.PathTag != "platform-soc_gpu" {
		t.Errorf("PathTag = %q, want platform-soc_gpu", device.PathTag)
	}
	if device.Subsystem != "platform" {
		t.Errorf("Subsystem = %q, want platform", device.Subsystem)
	}
	if device.Driver != "vc4" {
		t.Errorf("Driver = %q, want vc4", device.Driver)
	}
	if device.PCIClass != "" || device.PCIID != "" {
		t.Errorf("platform adapter has PCI identity: class=%q id=%q", device.PCIClass, device.PCIID)
	}
}

func TestScanReportsAdapterOncePerMinor(t *testing.T) {
	sysRoot := t.TempDir()
	addAdapter(t, sysRoot, intelAdapter())

	devices, err := newScannerAt(sysRoot).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	// card0 and renderD128 both point at the same adapter.
	if len(devices) != 1 {
		t.Fatalf("Scan returned %d devices, want 1", len(devices))
	}
}

func TestScanIgnoresNonMinorEntries(t *testing.T) {
	sysRoot := t.TempDir()
	addAdapter(t, sysRoot, intelAdapter())

	// Connector directories and the drm "version" file share the
	// class directory with the minors.
	if err := os.MkdirAll(filepath.Join(sysRoot, "class/drm/card0-eDP-1"), 0o755); err != nil {
		t.Fatalf("mkdir connector: %v", err)
	}
	writeSyntheticFile(t, sysRoot, "class/drm/version", "drm 1.1.0 20060810\n")

	devices, err := newScannerAt(sysRoot).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Scan returned %d devices, want 1", len(devices))
	}
}

func TestScanMissingClassDirectory(t *testing.T) {
	if _, err := newScannerAt(t.TempDir()).Scan(); err == nil {
		t.Error("Scan should fail when class/drm does not exist")
	}
}

func TestScanDriverlessAdapter(t *testing.T) {
	sysRoot := t.TempDir()
	spec := intelAdapter()
	spec.driver = ""
	spec.uevent = "PCI_CLASS=30000\nPCI_ID=8086:5917\nPCI_SLOT_NAME=0000:00:02.0\n"
	addAdapter(t, sysRoot, spec)

	devices, err := newScannerAt(sysRoot).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Scan returned %d devices, want 1", len(devices))
	}
	// Still enumerated; classification downstream decides its fate.
	if devices[0].Driver != "" {
		t.Errorf("Driver = %q, want empty", devices[0].Driver)
	}
}

func TestProbeAdapterRacingTeardown(t *testing.T) {
	sysRoot := t.TempDir()
	adapterPath := filepath.Join(sysRoot, "devices/pci0000:00/0000:01:00.0")
	if err := os.MkdirAll(adapterPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSyntheticFile(t, adapterPath, "uevent", "DRIVER=nvidia\nPCI_ID=10DE:1C8D\n")

	// No drm/ subdirectory left: minors already torn down.
	if _, ok := newScannerAt(sysRoot).probeAdapter(adapterPath); ok {
		t.Error("probeAdapter should report ok=false with no DRM minors")
	}
}

func TestParseUeventFile(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "uevent",
		"DRIVER=amdgpu\nPCI_CLASS=38000\nPCI_ID=1002:731F\nPCI_SLOT_NAME=0000:0b:00.0\n\nmalformed line\n")

	env := parseUeventFile(filepath.Join(root, "uevent"))
	if env["DRIVER"] != "amdgpu" {
		t.Errorf("DRIVER = %q, want amdgpu", env["DRIVER"])
	}
	if env["PCI_CLASS"] != "38000" {
		t.Errorf("PCI_CLASS = %q, want 38000", env["PCI_CLASS"])
	}
	if env["PCI_ID"] != "1002:731F" {
		t.Errorf("PCI_ID = %q, want 1002:731F", env["PCI_ID"])
	}
	if _, exists := env["malformed line"]; exists {
		t.Error("malformed line should be skipped")
	}

	if parseUeventFile(filepath.Join(root, "absent")) != nil {
		t.Error("missing uevent file should yield nil")
	}
}

func TestNodeNamePredicates(t *testing.T) {
	tests := []struct {
		name   string
		card   bool
		render bool
	}{
		{"card0", true, false},
		{"card12", true, false},
		{"card", false, false},
		{"card0-eDP-1", false, false},
		{"renderD128", false, true},
		{"renderD", false, false},
		{"renderDX", false, false},
		{"version", false, false},
		{"controlD64", false, false},
	}
	for _, test := range tests {
		if got := isCardNode(test.name); got != test.card {
			t.Errorf("isCardNode(%q) = %v, want %v", test.name, got, test.card)
		}
		if got := isRenderNode(test.name); got != test.render {
			t.Errorf("isRenderNode(%q) = %v, want %v", test.name, got, test.render)
		}
	}
}
