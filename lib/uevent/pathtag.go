// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// derivePathTag builds the stable bus-location tag for an adapter:
// "pci-0000_00_02_0", "platform-soc_gpu". The tag doubles as the
// DRI_PRIME selector value, so it uses the underscore form that
// Mesa's device loader matches against.
//
// PCI adapters are tagged by slot (from the uevent PCI_SLOT_NAME
// field); everything else by the adapter's directory name. An
// adapter with no usable location yields an empty tag, which
// classification treats as unidentifiable.
func derivePathTag(subsystem, pciSlot, adapterPath string) string {
	location := filepath.Base(adapterPath)
	if subsystem == "pci" && pciSlot != "" {
		location = pciSlot
	}
	if subsystem == "" || location == "" || location == "." || location == "/" {
		return ""
	}
	return subsystem + "-" + normalizeTag(location)
}

// pciSlotPattern matches PCI function directory names:
// "0000:01:00.0" (domain:bus:device.function).
var pciSlotPattern = regexp.MustCompile(`^[0-9a-fA-F]{4}:[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-9a-fA-F]$`)

// tagForVanishedAdapter derives the registry tag for an adapter whose
// sysfs directory is already gone, from the uevent devpath alone. PCI
// adapter directories are named by slot; anything else is treated as
// a platform device. Adapters on other buses never enter the registry
// in the first place, so a wrong guess evicts nothing.
func tagForVanishedAdapter(adapterDevPath string) string {
	location := path.Base(adapterDevPath)
	if pciSlotPattern.MatchString(location) {
		return "pci-" + normalizeTag(location)
	}
	return "platform-" + normalizeTag(location)
}

// normalizeTag maps a raw bus location to tag characters: letters,
// digits, '-' and '_' pass through, everything else (the ':' and '.'
// of PCI slots, the ':' of platform device names) becomes '_'.
func normalizeTag(raw string) string {
	var tag strings.Builder
	tag.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			tag.WriteRune(r)
		default:
			tag.WriteByte('_')
		}
	}
	return tag.String()
}
