// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package pciids resolves PCI vendor and device IDs to display names.
//
// Lookups are backed by the system pci.ids database via
// github.com/jaypipes/pcidb. When no database can be found the
// builtin vendor table still names the common GPU vendors, so display
// names degrade to "NVIDIA Corporation" rather than a bare hex ID.
package pciids

import (
	"fmt"
	"strings"

	"github.com/jaypipes/pcidb"
)

// builtinVendors names the GPU vendors worth recognizing even without
// a pci.ids file, in the register the database itself uses.
var builtinVendors = map[string]string{
	"1002": "Advanced Micro Devices, Inc. [AMD/ATI]",
	"10de": "NVIDIA Corporation",
	"8086": "Intel Corporation",
	"1af4": "Red Hat, Inc.",
}

// DB resolves PCI identities to human-readable names. The zero value
// (or [Builtin]) serves from the builtin vendor table alone.
type DB struct {
	pci *pcidb.PCIDB
}

// Open loads the PCI ID database. An explicit path is loaded from
// that file alone; with path == "" the standard system locations
// (/usr/share/hwdata, /usr/share/misc, the pcidb cache) are searched.
// Callers typically degrade to [Builtin] when Open fails.
func Open(path string) (*DB, error) {
	var options []*pcidb.WithOption
	if path != "" {
		options = append(options, pcidb.WithDirectPath(path))
	}

	db, err := pcidb.New(options...)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("loading PCI IDs from %s: %w", path, err)
		}
		return nil, fmt.Errorf("loading PCI ID database: %w", err)
	}
	return &DB{pci: db}, nil
}

// Builtin returns a database serving only the builtin vendor table.
func Builtin() *DB {
	return &DB{}
}

// LookupPCI resolves a vendor:device identity. The vendor name comes
// back whenever the vendor is known at all; the model name only when
// the exact device is listed. ok reports whether anything was found.
func (d *DB) LookupPCI(vendor, device string) (vendorName, modelName string, ok bool) {
	vendor = strings.ToLower(vendor)
	device = strings.ToLower(device)

	if d.pci != nil {
		if entry, found := d.pci.Vendors[vendor]; found {
			var model string
			// Products are keyed by the concatenated vendor and
			// product IDs.
			if product, found := d.pci.Products[vendor+device]; found {
				model = product.Name
			}
			return entry.Name, model, true
		}
	}

	if name, found := builtinVendors[vendor]; found {
		return name, "", true
	}
	return "", "", false
}
