// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpu implements the dual-GPU state engine: classification of
// raw devices into GPU records, display-name and launch-environment
// resolution, and the registry that maintains the live GPU set.
//
// The package is pure logic. Device enumeration lives in lib/uevent,
// the PCI name database in lib/pciids, and the query/watch transport
// in lib/control; this package consumes them only through the
// [RawDevice] value shape and the [NameDB] and [Publisher] interfaces,
// which keeps every state transition testable without hardware.
//
// The [Coordinator] is the single writer: it seeds the [Registry] from
// the initial device scan and then applies add/remove events strictly
// in delivery order. Readers only ever observe completed [Snapshot]
// values; there is no partially-updated state to see.
package gpu
