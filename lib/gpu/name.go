// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"regexp"
	"strings"
)

// FallbackName is the display name used when neither the device
// attributes nor the name database yield anything. Display names are
// best-effort; resolution never fails.
const FallbackName = "Unknown Graphics Controller"

// nameRewrites prettify the combined "vendor model" string: trademark
// glyphs for the ASCII markers, legal-suffix noise dropped, Gallium
// renderer wrapping unwrapped. Applied in order; earlier rewrites feed
// later ones.
var nameRewrites = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`Mesa DRI `), ""},
	{regexp.MustCompile(`Intel\(R\)`), "Intel®"},
	{regexp.MustCompile(`Intel Corporation`), "Intel®"},
	{regexp.MustCompile(`Core\(TM\)`), "Core™"},
	{regexp.MustCompile(`Atom\(TM\)`), "Atom™"},
	{regexp.MustCompile(`Gallium .* on (AMD .*)`), "$1"},
	{regexp.MustCompile(`(AMD .*) \(.*`), "$1"},
	{regexp.MustCompile(`Graphics Controller`), "Graphics"},
}

// ResolveName derives the display name for a classified GPU.
//
// Descriptive strings carried on the raw device take precedence; the
// name database fills whichever of vendor/model is still missing, keyed
// by the GPU's PCI identity. With both strings in hand the result is
// "vendor model" run through the prettifying rewrites — unless the
// model already names the vendor, in which case the model stands alone.
// A single available string is returned verbatim, and nothing at all
// resolves to [FallbackName]. Misses are cosmetic, never fatal.
func ResolveName(db NameDB, device RawDevice, g GPU) string {
	vendor := strings.TrimSpace(device.VendorName)
	model := strings.TrimSpace(device.ModelName)

	if (vendor == "" || model == "") && db != nil && g.Vendor != "" {
		dbVendor, dbModel, ok := db.LookupPCI(g.Vendor, g.Device)
		if ok {
			if vendor == "" {
				vendor = dbVendor
			}
			if model == "" {
				model = dbModel
			}
		}
	}

	switch {
	case vendor == "" && model == "":
		return FallbackName
	case vendor == "":
		return model
	case model == "":
		return vendor
	case strings.Contains(model, vendor):
		return model
	}
	return prettifyName(vendor + " " + model)
}

func prettifyName(name string) string {
	for _, rewrite := range nameRewrites {
		name = rewrite.pattern.ReplaceAllString(name, rewrite.replace)
	}
	return strings.TrimSpace(name)
}
