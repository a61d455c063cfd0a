// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Switcheroo-control is the dual-GPU state daemon. It enumerates DRM
// adapters from sysfs, classifies them, follows kernel uevents for
// hotplug, and publishes the resulting GPU list (names, default flag,
// per-GPU launch environment) over a Unix control socket for
// switcherooctl and desktop integration to consume.
package main
