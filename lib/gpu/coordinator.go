// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"context"
	"log/slog"
)

// EventKind distinguishes device arrival from removal.
type EventKind uint8

const (
	// DeviceAdded announces a newly present (or re-announced) device
	// with its full attribute set.
	DeviceAdded EventKind = iota + 1

	// DeviceRemoved announces departure. Only the path tag is
	// meaningful; the rest of the attributes may be empty because
	// the device is already gone from sysfs.
	DeviceRemoved
)

// String returns the event kind for logs and journal entries.
func (k EventKind) String() string {
	switch k {
	case DeviceAdded:
		return "add"
	case DeviceRemoved:
		return "remove"
	default:
		return "unknown"
	}
}

// DeviceEvent is one hotplug notification from the device source.
type DeviceEvent struct {
	Kind   EventKind
	Device RawDevice
}

// Coordinator drives the registry. It is the only component that
// mutates GPU state: it classifies devices, resolves their names and
// environments, applies add/remove transitions, and pushes a fresh
// snapshot to the publisher after every mutation.
//
// Mutating calls (Seed, Handle, Reconcile, Run) must not overlap; the
// daemon drives them all from one goroutine. Snapshot is safe to call
// from anywhere.
type Coordinator struct {
	registry  *Registry
	names     NameDB
	publisher Publisher
	logger    *slog.Logger
}

// NewCoordinator builds a coordinator around an empty registry. names
// may be nil (display names then come from device attributes or the
// fallback); publisher and logger must be non-nil.
func NewCoordinator(names NameDB, publisher Publisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry:  NewRegistry(),
		names:     names,
		publisher: publisher,
		logger:    logger,
	}
}

// Seed performs the initial population: every currently present
// device is classified and the accepted ones registered, then exactly
// one snapshot covering the whole set is published. Devices that fail
// classification are skipped silently — the initial scan sees plenty
// of non-GPU DRM infrastructure.
func (c *Coordinator) Seed(devices []RawDevice) {
	accepted := 0
	for _, device := range devices {
		if c.admit(device) {
			accepted++
		}
	}
	c.logger.Info("initial device scan complete",
		"devices", len(devices),
		"gpus", accepted,
	)
	c.publisher.PublishState(c.registry.Snapshot(), Change{Reason: ReasonSeed})
}

// Run consumes device events strictly in delivery order until the
// channel closes or the context is canceled. Each accepted transition
// publishes a fresh snapshot before the next event is examined, so a
// waiting consumer observes every state the registry passes through.
//
// Nothing in the loop is fatal: malformed devices are dropped by
// classification and removals of unknown tags are no-ops.
func (c *Coordinator) Run(ctx context.Context, events <-chan DeviceEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.Handle(event)
		}
	}
}

// Reconcile diffs the registry against a fresh full scan: path tags
// no longer present are removed, everything present is re-admitted
// (refreshing attributes in place). Used by the SIGHUP and periodic
// resyncs as a safety net under the incremental event stream. Each
// mutation publishes, so downstream digest-based deduplication decides
// whether anything actually changed.
func (c *Coordinator) Reconcile(devices []RawDevice) {
	present := make(map[string]bool, len(devices))
	for _, device := range devices {
		if _, ok := Classify(device); ok {
			present[device.PathTag] = true
		}
	}

	for _, tag := range c.registry.PathTags() {
		if present[tag] {
			continue
		}
		if c.registry.Remove(tag) {
			c.logger.Info("gpu vanished during resync", "path_tag", tag)
			c.publisher.PublishState(c.registry.Snapshot(),
				Change{Reason: ReasonResync, PathTag: tag})
		}
	}

	for _, device := range devices {
		if c.admit(device) {
			c.publisher.PublishState(c.registry.Snapshot(),
				Change{Reason: ReasonResync, PathTag: device.PathTag})
		}
	}
}

// Snapshot returns the current derived view without mutating anything.
func (c *Coordinator) Snapshot() Snapshot {
	return c.registry.Snapshot()
}

// Handle applies one device event: an added device is classified and
// registered (non-GPUs are dropped), a removal evicts by path tag. An
// accepted transition publishes before Handle returns.
func (c *Coordinator) Handle(event DeviceEvent) {
	switch event.Kind {
	case DeviceAdded:
		if !c.admit(event.Device) {
			c.logger.Debug("ignoring non-gpu device",
				"path", event.Device.Path,
				"subsystem", event.Device.Subsystem,
			)
			return
		}
		c.publisher.PublishState(c.registry.Snapshot(),
			Change{Reason: ReasonAdd, PathTag: event.Device.PathTag})

	case DeviceRemoved:
		if !c.registry.Remove(event.Device.PathTag) {
			return
		}
		c.logger.Info("gpu removed", "path_tag", event.Device.PathTag)
		c.publisher.PublishState(c.registry.Snapshot(),
			Change{Reason: ReasonRemove, PathTag: event.Device.PathTag})
	}
}

// admit classifies a device and registers it on success, resolving
// the display name on the way in.
func (c *Coordinator) admit(device RawDevice) bool {
	g, ok := Classify(device)
	if !ok {
		return false
	}
	g.Name = ResolveName(c.names, device, g)
	c.registry.Add(g)
	c.logger.Info("gpu registered",
		"name", g.Name,
		"path_tag", g.PathTag,
		"driver", g.Driver,
		"family", g.Family.String(),
		"default", g.Default,
	)
	return true
}
