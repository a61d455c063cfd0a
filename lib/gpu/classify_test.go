// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import "testing"

// intelDevice returns the integrated Intel adapter used across the
// package tests: boot-primary, VGA class, open-source driver.
func intelDevice() RawDevice {
	return RawDevice{
		Subsystem: "pci",
		Driver:    "i915",
		PCIClass:  "30000",
		PCIID:     "8086:5917",
		BootVGA:   "1",
		Path:      "/sys/devices/pci0000:00/0000:00:02.0",
		PathTag:   "pci-0000_00_02_0",
		DRMNodes:  []string{"card0", "renderD128"},
	}
}

// nvidiaDevice returns a discrete adapter on the proprietary driver,
// not boot-primary.
func nvidiaDevice() RawDevice {
	return RawDevice{
		Subsystem: "pci",
		Driver:    "nvidia",
		PCIClass:  "30000",
		PCIID:     "10DE:1C03",
		Path:      "/sys/devices/pci0000:00/0000:01:00.0",
		PathTag:   "pci-0000_01_00_0",
		DRMNodes:  []string{"card1", "renderD129"},
	}
}

func TestClassifyPCIDisplayDevice(t *testing.T) {
	g, ok := Classify(intelDevice())
	if !ok {
		t.Fatal("Classify rejected a boot-primary VGA adapter")
	}
	if g.Vendor != "8086" || g.Device != "5917" {
		t.Errorf("identity = %s:%s, want 8086:5917", g.Vendor, g.Device)
	}
	if g.Driver != "i915" {
		t.Errorf("driver = %q, want i915", g.Driver)
	}
	if g.Family != DriverOpenSource {
		t.Errorf("family = %v, want %v", g.Family, DriverOpenSource)
	}
	if g.PathTag != "pci-0000_00_02_0" {
		t.Errorf("path tag = %q, want pci-0000_00_02_0", g.PathTag)
	}
	if !g.Default {
		t.Error("boot_vga=1 device not marked default")
	}
	want := []EnvVar{{Key: "DRI_PRIME", Value: "pci-0000_00_02_0"}}
	if len(g.Environment) != 1 || g.Environment[0] != want[0] {
		t.Errorf("environment = %v, want %v", g.Environment, want)
	}
}

func TestClassifyUppercasePCIIDNormalized(t *testing.T) {
	g, ok := Classify(nvidiaDevice())
	if !ok {
		t.Fatal("Classify rejected a discrete NVIDIA adapter")
	}
	if g.Vendor != "10de" || g.Device != "1c03" {
		t.Errorf("identity = %s:%s, want 10de:1c03", g.Vendor, g.Device)
	}
	if g.Family != DriverNVIDIAProprietary {
		t.Errorf("family = %v, want %v", g.Family, DriverNVIDIAProprietary)
	}
	if g.Default {
		t.Error("device without boot_vga marked default")
	}
}

func TestClassifyPlatformGPU(t *testing.T) {
	device := RawDevice{
		Subsystem: "platform",
		Driver:    "vc4",
		Path:      "/sys/devices/platform/soc/soc:gpu",
		PathTag:   "platform-soc_gpu",
		DRMNodes:  []string{"card0", "renderD128"},
	}
	g, ok := Classify(device)
	if !ok {
		t.Fatal("Classify rejected a vc4 platform GPU")
	}
	if g.Vendor != "" || g.Device != "" {
		t.Errorf("platform GPU has PCI identity %s:%s, want empty", g.Vendor, g.Device)
	}
	if g.PathTag != "platform-soc_gpu" {
		t.Errorf("path tag = %q, want platform-soc_gpu", g.PathTag)
	}
}

func TestClassify3DControllerClass(t *testing.T) {
	device := nvidiaDevice()
	device.PCIClass = "30200"
	if _, ok := Classify(device); !ok {
		t.Error("Classify rejected a 3D controller (class 0x030200)")
	}
}

func TestClassifyMalformedPCIIDKeepsDevice(t *testing.T) {
	device := intelDevice()
	device.PCIID = "garbage"
	g, ok := Classify(device)
	if !ok {
		t.Fatal("malformed PCI_ID disqualified the device; it should only drop identity")
	}
	if g.Vendor != "" || g.Device != "" {
		t.Errorf("identity = %s:%s, want empty for malformed PCI_ID", g.Vendor, g.Device)
	}
}

func TestClassifyRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawDevice)
	}{
		{"ttm subsystem", func(d *RawDevice) { d.Subsystem = "ttm" }},
		{"no render node", func(d *RawDevice) { d.DRMNodes = []string{"card0", "card0-eDP-1"} }},
		{"no drm nodes at all", func(d *RawDevice) { d.DRMNodes = nil }},
		{"non-display pci class", func(d *RawDevice) { d.PCIClass = "20000" }},
		{"unparseable pci class", func(d *RawDevice) { d.PCIClass = "zz" }},
		{"empty pci class", func(d *RawDevice) { d.PCIClass = "" }},
		{"missing path tag", func(d *RawDevice) { d.PathTag = "" }},
		{"unknown subsystem", func(d *RawDevice) { d.Subsystem = "usb" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			device := intelDevice()
			test.mutate(&device)
			if _, ok := Classify(device); ok {
				t.Errorf("Classify accepted device with %s", test.name)
			}
		})
	}
}

func TestClassifyPlatformUnknownDriverRejected(t *testing.T) {
	device := RawDevice{
		Subsystem: "platform",
		Driver:    "ethernet-phy",
		PathTag:   "platform-phy",
		DRMNodes:  []string{"renderD128"},
	}
	if _, ok := Classify(device); ok {
		t.Error("Classify accepted a platform device with a non-GPU driver")
	}
}
