// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/xzl01/switcheroo-control/lib/clock"
	"github.com/xzl01/switcheroo-control/lib/control"
	"github.com/xzl01/switcheroo-control/lib/gpu"
	"github.com/xzl01/switcheroo-control/lib/journal"
	"github.com/xzl01/switcheroo-control/lib/metrics"
)

// Daemon wires the device source, the coordinator, and the publish
// boundary together and owns the mutation loop.
type Daemon struct {
	coordinator *gpu.Coordinator
	metrics     *metrics.Metrics
	clock       clock.Clock
	logger      *slog.Logger

	// rescan produces the current full device set: sysfs in normal
	// operation, the fixture file when one is configured.
	rescan func() ([]gpu.RawDevice, error)

	// resyncEvery is how often the loop re-runs rescan as a safety net
	// under the event stream. Zero disables the ticker; SIGHUP still
	// triggers a rescan.
	resyncEvery time.Duration

	// hup receives SIGHUP deliveries.
	hup <-chan os.Signal
}

// run applies hotplug events, periodic resyncs, and SIGHUP rescans
// from a single goroutine, so registry mutations and their publishes
// stay strictly ordered. Returns when ctx is cancelled or the event
// feed closes underneath it. events may be nil (fixture mode); the
// loop then serves only resyncs.
func (d *Daemon) run(ctx context.Context, events <-chan gpu.DeviceEvent) error {
	var tick <-chan time.Time
	if d.resyncEvery > 0 {
		ticker := d.clock.NewTicker(d.resyncEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("device event feed closed")
			}
			d.metrics.ObserveDeviceEvent(event.Kind)
			d.coordinator.Handle(event)

		case <-tick:
			d.resync()

		case <-d.hup:
			d.logger.Info("sighup received, rescanning devices")
			d.resync()
		}
	}
}

// resync diffs the registry against a fresh full scan. A failed scan
// keeps the current state; the next tick retries.
func (d *Daemon) resync() {
	devices, err := d.rescan()
	if err != nil {
		d.logger.Error("device rescan failed", "error", err)
		return
	}
	d.coordinator.Reconcile(devices)
}

// statePublisher is the daemon's publish boundary: every snapshot the
// coordinator produces flows through here. The control server
// deduplicates byte-identical states, so only genuine changes reach
// subscribers, metrics, and the journal.
type statePublisher struct {
	server  *control.Server
	metrics *metrics.Metrics
	journal *journal.Writer // nil when journaling is disabled
	clock   clock.Clock
	logger  *slog.Logger
}

func (p *statePublisher) PublishState(snapshot gpu.Snapshot, change gpu.Change) {
	changed, err := p.server.Update(control.FlattenState(snapshot))
	if err != nil {
		p.logger.Error("state publish failed", "error", err)
		return
	}
	if !changed {
		return
	}

	p.metrics.ObserveSnapshot(snapshot)
	p.logger.Info("gpu state published",
		"reason", change.Reason,
		"gpus", snapshot.NumGPUs,
		"dual_gpu", snapshot.HasDualGPU,
	)

	if p.journal == nil {
		return
	}
	digest := p.server.Digest()
	entry := journal.NewEntry(p.clock.Now(), snapshot, change, hex.EncodeToString(digest[:]))
	if err := p.journal.Append(entry); err != nil {
		p.logger.Error("journal append failed", "error", err)
	}
}
