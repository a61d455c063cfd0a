// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

// Scanner enumerates display adapters from sysfs.
type Scanner struct {
	// sysRoot is the root of the sysfs filesystem. Defaults to "/sys"
	// in production; overridden in tests with synthetic filesystems.
	sysRoot string
}

// NewScanner creates a Scanner that reads from the real /sys
// filesystem.
func NewScanner() *Scanner {
	return &Scanner{sysRoot: "/sys"}
}

// newScannerAt creates a Scanner with a custom sysfs root for tests.
func newScannerAt(sysRoot string) *Scanner {
	return &Scanner{sysRoot: sysRoot}
}

// Scan enumerates every adapter that currently owns a DRM minor. Each
// adapter is reported once no matter how many minors (card, render
// node) it owns. The error covers only an unreadable DRM class
// directory; individual adapters that cannot be probed are skipped.
func (s *Scanner) Scan() ([]gpu.RawDevice, error) {
	drmBase := filepath.Join(s.sysRoot, "class/drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", drmBase, err)
	}

	seen := make(map[string]struct{})
	var devices []gpu.RawDevice
	for _, entry := range entries {
		name := entry.Name()
		if !isCardNode(name) && !isRenderNode(name) {
			continue
		}

		// The minor's "device" symlink points at the owning adapter.
		adapterPath, err := filepath.EvalSymlinks(filepath.Join(drmBase, name, "device"))
		if err != nil {
			continue
		}
		if _, done := seen[adapterPath]; done {
			continue
		}
		seen[adapterPath] = struct{}{}

		if device, ok := s.probeAdapter(adapterPath); ok {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// probeAdapter reads one adapter's identity from its sysfs directory.
// Returns ok=false when the adapter has no DRM minors left — which
// happens when a probe races device teardown.
func (s *Scanner) probeAdapter(adapterPath string) (gpu.RawDevice, bool) {
	env := parseUeventFile(filepath.Join(adapterPath, "uevent"))

	subsystem := readSymlinkBase(filepath.Join(adapterPath, "subsystem"))
	if subsystem == "" {
		subsystem = env["SUBSYSTEM"]
	}
	driver := readSymlinkBase(filepath.Join(adapterPath, "driver"))
	if driver == "" {
		driver = env["DRIVER"]
	}

	device := gpu.RawDevice{
		Subsystem: subsystem,
		Driver:    driver,
		PCIClass:  env["PCI_CLASS"],
		PCIID:     env["PCI_ID"],
		BootVGA:   readSysfsString(filepath.Join(adapterPath, "boot_vga")),
		Path:      adapterPath,
		PathTag:   derivePathTag(subsystem, env["PCI_SLOT_NAME"], adapterPath),
		DRMNodes:  listDRMNodes(adapterPath),
	}
	return device, len(device.DRMNodes) > 0
}

// listDRMNodes returns the adapter's DRM minor names (card0,
// renderD128), in directory order. Connector directories (card0-DP-1)
// live under the minor, not the adapter, so no filtering beyond the
// name shape is needed.
func listDRMNodes(adapterPath string) []string {
	entries, err := os.ReadDir(filepath.Join(adapterPath, "drm"))
	if err != nil {
		return nil
	}
	var nodes []string
	for _, entry := range entries {
		name := entry.Name()
		if isCardNode(name) || isRenderNode(name) {
			nodes = append(nodes, name)
		}
	}
	return nodes
}

// isCardNode returns true for DRM card device names (card0, card1,
// ...) but not connectors (card0-DP-1) or render nodes (renderD128).
func isCardNode(name string) bool {
	return strings.HasPrefix(name, "card") && allDigits(name[len("card"):])
}

// isRenderNode returns true for DRM render node names (renderD128,
// renderD129, ...).
func isRenderNode(name string) bool {
	return strings.HasPrefix(name, "renderD") && allDigits(name[len("renderD"):])
}

func allDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, character := range s {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// parseUeventFile reads a sysfs uevent file into a key/value map.
// The file contains lines like:
//
//	DRIVER=i915
//	PCI_CLASS=30000
//	PCI_ID=8086:5917
//	PCI_SLOT_NAME=0000:00:02.0
//
// Returns nil when the file cannot be read.
func parseUeventFile(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

// readSymlinkBase returns the basename of a symlink's target, or ""
// when the link cannot be read. Sysfs expresses an adapter's driver
// and subsystem as symlinks into /sys/bus.
func readSymlinkBase(path string) string {
	link, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// readSysfsString reads a single-line sysfs file and returns its
// trimmed content. Returns "" on any error.
func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
