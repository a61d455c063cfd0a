// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

func TestParseFixtureDefaults(t *testing.T) {
	devices, err := ParseFixture([]byte(`[
		{"path_tag": "pci-0000_00_02_0"},
		{"path_tag": "pci-0000_01_00_0"}
	]`))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	first := devices[0]
	if first.Subsystem != "pci" {
		t.Errorf("Subsystem = %q, want pci", first.Subsystem)
	}
	if first.Path != "fixture:pci-0000_00_02_0" {
		t.Errorf("Path = %q", first.Path)
	}
	if !reflect.DeepEqual(first.DRMNodes, []string{"card0", "renderD128"}) {
		t.Errorf("DRMNodes = %v", first.DRMNodes)
	}

	// Defaults number minors by position so fixtures never collide.
	second := devices[1]
	if !reflect.DeepEqual(second.DRMNodes, []string{"card1", "renderD129"}) {
		t.Errorf("second DRMNodes = %v", second.DRMNodes)
	}
}

func TestParseFixtureExplicitFields(t *testing.T) {
	devices, err := ParseFixture([]byte(`[{
		"subsystem": "platform",
		"driver": "vc4",
		"path_tag": "platform-soc_gpu",
		"vendor": "Broadcom",
		"model": "VideoCore VI",
		"drm_nodes": ["card0", "renderD128"]
	}]`))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	device := devices[0]
	if device.Subsystem != "platform" {
		t.Errorf("Subsystem = %q, want platform", device.Subsystem)
	}
	if device.Driver != "vc4" {
		t.Errorf("Driver = %q, want vc4", device.Driver)
	}
	if device.VendorName != "Broadcom" || device.ModelName != "VideoCore VI" {
		t.Errorf("names = %q / %q", device.VendorName, device.ModelName)
	}
}

func TestParseFixtureAllowsCommentsAndTrailingCommas(t *testing.T) {
	devices, err := ParseFixture([]byte(`[
		// integrated boot GPU
		{
			"path_tag": "pci-0000_00_02_0",
			"driver": "i915",
			"pci_class": "30000",
			"pci_id": "8086:5917",
			"boot_vga": "1", // trailing comma below too
		},
	]`))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
	if devices[0].PCIID != "8086:5917" {
		t.Errorf("PCIID = %q", devices[0].PCIID)
	}
}

func TestParseFixtureMissingPathTag(t *testing.T) {
	_, err := ParseFixture([]byte(`[
		{"driver": "i915"},
		{"path_tag": "pci-0000_01_00_0"},
		{"driver": "nvidia"}
	]`))
	if err == nil {
		t.Fatal("ParseFixture should reject entries without path_tag")
	}
	message := err.Error()
	if !strings.Contains(message, "device 0") || !strings.Contains(message, "device 2") {
		t.Errorf("error %q should name both offending entries", message)
	}
}

func TestParseFixtureInvalidJSON(t *testing.T) {
	if _, err := ParseFixture([]byte(`{"not": "a list"}`)); err == nil {
		t.Error("ParseFixture should reject a non-list document")
	}
}

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.jsonc")
	writeSyntheticFile(t, dir, "devices.jsonc", `[
		// dual-GPU laptop
		{"path_tag": "pci-0000_00_02_0", "driver": "i915",
		 "pci_class": "30000", "pci_id": "8086:5917", "boot_vga": "1"},
		{"path_tag": "pci-0000_01_00_0", "driver": "nvidia",
		 "pci_class": "30200", "pci_id": "10de:1c8d"},
	]`)

	devices, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	// Fixture devices must sail through classification like real
	// hardware.
	for _, device := range devices {
		if _, ok := gpu.Classify(device); !ok {
			t.Errorf("fixture device %q failed classification", device.PathTag)
		}
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Error("LoadFixture should fail on a missing file")
	}
}

func TestLoadFixtureBadContents(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticFile(t, dir, "bad.jsonc", `[{"driver": "i915"}]`)

	_, err := LoadFixture(filepath.Join(dir, "bad.jsonc"))
	if err == nil {
		t.Fatal("LoadFixture should surface entry problems")
	}
	if !strings.Contains(err.Error(), "bad.jsonc") {
		t.Errorf("error %q should name the file", err)
	}
}
