// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

// fixtureDevice is one adapter entry in a device fixture file. Field
// names mirror the sysfs-derived attributes; vendor and model are
// optional display strings that take precedence over the PCI name
// database.
type fixtureDevice struct {
	Subsystem string   `json:"subsystem"`
	Driver    string   `json:"driver"`
	PCIClass  string   `json:"pci_class"`
	PCIID     string   `json:"pci_id"`
	BootVGA   string   `json:"boot_vga"`
	PathTag   string   `json:"path_tag"`
	Vendor    string   `json:"vendor"`
	Model     string   `json:"model"`
	DRMNodes  []string `json:"drm_nodes"`
}

// ParseFixture strips JSONC comments and trailing commas from data,
// then unmarshals the adapter list. Entries default to a PCI adapter
// with one card and one render node, so a minimal fixture needs only
// a path_tag and whatever identity the scenario cares about:
//
//	[
//	  // integrated boot GPU
//	  {"path_tag": "pci-0000_00_02_0", "driver": "i915",
//	   "pci_class": "30000", "pci_id": "8086:5917", "boot_vga": "1"},
//	]
func ParseFixture(data []byte) ([]gpu.RawDevice, error) {
	stripped := jsonc.ToJSON(data)

	var entries []fixtureDevice
	if err := json.Unmarshal(stripped, &entries); err != nil {
		return nil, fmt.Errorf("parsing device fixture: %w", err)
	}

	devices := make([]gpu.RawDevice, 0, len(entries))
	var problems []error
	for i, entry := range entries {
		if entry.PathTag == "" {
			problems = append(problems, fmt.Errorf("device %d: missing path_tag", i))
			continue
		}
		if entry.Subsystem == "" {
			entry.Subsystem = "pci"
		}
		if entry.DRMNodes == nil {
			entry.DRMNodes = []string{fmt.Sprintf("card%d", i), fmt.Sprintf("renderD%d", 128+i)}
		}
		devices = append(devices, gpu.RawDevice{
			Subsystem:  entry.Subsystem,
			Driver:     entry.Driver,
			PCIClass:   entry.PCIClass,
			PCIID:      entry.PCIID,
			BootVGA:    entry.BootVGA,
			Path:       "fixture:" + entry.PathTag,
			PathTag:    entry.PathTag,
			VendorName: entry.Vendor,
			ModelName:  entry.Model,
			DRMNodes:   entry.DRMNodes,
		})
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return devices, nil
}

// LoadFixture reads a JSONC device fixture from disk. Returns a
// descriptive error if the file cannot be read or an entry is
// unusable.
func LoadFixture(path string) ([]gpu.RawDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	devices, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return devices, nil
}
