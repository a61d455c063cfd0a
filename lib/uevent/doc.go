// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package uevent is the daemon's device source. It produces
// [gpu.RawDevice] values from three places:
//
//   - [Scanner] enumerates the adapters currently visible under
//     /sys/class/drm (used at startup and for resyncs),
//   - [Monitor] turns kernel uevents (NETLINK_KOBJECT_UEVENT) into
//     add/remove events for steady-state operation,
//   - [LoadFixture] reads adapters from a JSONC fixture file for
//     hardware-free runs and integration tests.
//
// All three speak the same vocabulary: an adapter is the bus device
// (PCI function, platform device) that owns one or more DRM minors
// (card0, renderD128). The scanner and monitor never interpret what
// they find — classification is the gpu package's job — but they do
// derive the adapter's stable path tag, since only the device source
// knows the bus location.
package uevent
