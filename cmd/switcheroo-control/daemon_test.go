// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/xzl01/switcheroo-control/lib/clock"
	"github.com/xzl01/switcheroo-control/lib/control"
	"github.com/xzl01/switcheroo-control/lib/gpu"
	"github.com/xzl01/switcheroo-control/lib/journal"
	"github.com/xzl01/switcheroo-control/lib/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// intelDevice is the boot-primary integrated adapter.
func intelDevice() gpu.RawDevice {
	return gpu.RawDevice{
		Subsystem: "pci",
		Driver:    "i915",
		PCIClass:  "30000",
		PCIID:     "8086:5917",
		BootVGA:   "1",
		Path:      "/sys/devices/pci0000:00/0000:00:02.0",
		PathTag:   "pci-0000_00_02_0",
		DRMNodes:  []string{"card0", "renderD128"},
	}
}

// nvidiaDevice is a discrete adapter on the proprietary driver.
func nvidiaDevice() gpu.RawDevice {
	return gpu.RawDevice{
		Subsystem: "pci",
		Driver:    "nvidia",
		PCIClass:  "30000",
		PCIID:     "10DE:1C03",
		Path:      "/sys/devices/pci0000:00/0000:01:00.0",
		PathTag:   "pci-0000_01_00_0",
		DRMNodes:  []string{"card1", "renderD129"},
	}
}

// recordingPublisher hands each published snapshot to the test
// goroutine.
type recordingPublisher struct {
	snapshots chan gpu.Snapshot
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{snapshots: make(chan gpu.Snapshot, 16)}
}

func (p *recordingPublisher) PublishState(s gpu.Snapshot, _ gpu.Change) {
	p.snapshots <- s
}

// waitForGPUCount reads published snapshots until one carries the
// wanted GPU count. Snapshots with zero GPUs fail the test unless
// zero is the wanted count: no scenario here legitimately empties the
// registry on the way to a larger state.
func waitForGPUCount(t *testing.T, p *recordingPublisher, want int) gpu.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-p.snapshots:
			if s.NumGPUs == want {
				return s
			}
			if s.NumGPUs == 0 {
				t.Fatalf("registry emptied while waiting for %d GPUs", want)
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d GPUs arrived", want)
		}
	}
}

// deviceSet is a mutable rescan source for resync tests.
type deviceSet struct {
	mu      sync.Mutex
	devices []gpu.RawDevice
	err     error
}

func (s *deviceSet) set(devices []gpu.RawDevice, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
	s.err = err
}

func (s *deviceSet) rescan() ([]gpu.RawDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gpu.RawDevice(nil), s.devices...), s.err
}

func testDaemon(publisher gpu.Publisher, rescan func() ([]gpu.RawDevice, error), clk clock.Clock, resyncEvery time.Duration) *Daemon {
	return &Daemon{
		coordinator: gpu.NewCoordinator(nil, publisher, testLogger()),
		metrics:     metrics.New(),
		clock:       clk,
		rescan:      rescan,
		resyncEvery: resyncEvery,
		logger:      testLogger(),
	}
}

func TestDaemonAppliesEvents(t *testing.T) {
	publisher := newRecordingPublisher()
	daemon := testDaemon(publisher, nil, clock.Real(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan gpu.DeviceEvent)
	done := make(chan error, 1)
	go func() { done <- daemon.run(ctx, events) }()

	events <- gpu.DeviceEvent{Kind: gpu.DeviceAdded, Device: nvidiaDevice()}
	snapshot := waitForGPUCount(t, publisher, 1)
	if snapshot.GPUs[0].PathTag != "pci-0000_01_00_0" {
		t.Errorf("registered tag = %q, want pci-0000_01_00_0", snapshot.GPUs[0].PathTag)
	}

	events <- gpu.DeviceEvent{
		Kind:   gpu.DeviceRemoved,
		Device: gpu.RawDevice{PathTag: "pci-0000_01_00_0"},
	}
	select {
	case s := <-publisher.snapshots:
		if s.NumGPUs != 0 {
			t.Errorf("after removal: %d GPUs, want 0", s.NumGPUs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("removal published no snapshot")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run returned %v, want context.Canceled", err)
	}
}

func TestDaemonFeedClosedIsError(t *testing.T) {
	daemon := testDaemon(newRecordingPublisher(), nil, clock.Real(), 0)

	events := make(chan gpu.DeviceEvent)
	close(events)

	err := daemon.run(context.Background(), events)
	if err == nil || !strings.Contains(err.Error(), "event feed closed") {
		t.Errorf("run returned %v, want event feed closed error", err)
	}
}

func TestDaemonPeriodicResync(t *testing.T) {
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	source := &deviceSet{}
	source.set([]gpu.RawDevice{intelDevice()}, nil)

	publisher := newRecordingPublisher()
	daemon := testDaemon(publisher, source.rescan, clk, 30*time.Second)

	daemon.coordinator.Seed([]gpu.RawDevice{intelDevice()})
	waitForGPUCount(t, publisher, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- daemon.run(ctx, nil) }()

	clk.WaitForTimers(1)
	source.set([]gpu.RawDevice{intelDevice(), nvidiaDevice()}, nil)
	clk.Advance(30 * time.Second)

	snapshot := waitForGPUCount(t, publisher, 2)
	if !snapshot.HasDualGPU {
		t.Error("resync-discovered second GPU should set HasDualGPU")
	}

	cancel()
	<-done
}

func TestDaemonSighupRescan(t *testing.T) {
	source := &deviceSet{}
	source.set([]gpu.RawDevice{intelDevice(), nvidiaDevice()}, nil)

	publisher := newRecordingPublisher()
	daemon := testDaemon(publisher, source.rescan, clock.Real(), 0)
	sighup := make(chan os.Signal, 1)
	daemon.hup = sighup

	daemon.coordinator.Seed([]gpu.RawDevice{intelDevice()})
	waitForGPUCount(t, publisher, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- daemon.run(ctx, nil) }()

	sighup <- syscall.SIGHUP
	waitForGPUCount(t, publisher, 2)

	cancel()
	<-done
}

func TestDaemonRescanFailureKeepsState(t *testing.T) {
	source := &deviceSet{}
	source.set(nil, errors.New("sysfs went away"))

	publisher := newRecordingPublisher()
	daemon := testDaemon(publisher, source.rescan, clock.Real(), 0)
	sighup := make(chan os.Signal, 1)
	daemon.hup = sighup

	daemon.coordinator.Seed([]gpu.RawDevice{intelDevice()})
	waitForGPUCount(t, publisher, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- daemon.run(ctx, nil) }()

	// A failing rescan must leave the registry alone. Then a working
	// rescan grows the set; waitForGPUCount fails the test if any
	// empty snapshot was published in between.
	sighup <- syscall.SIGHUP
	source.set([]gpu.RawDevice{intelDevice(), nvidiaDevice()}, nil)
	sighup <- syscall.SIGHUP

	waitForGPUCount(t, publisher, 2)

	cancel()
	<-done
}

func TestStatePublisherDeduplicatesAndJournals(t *testing.T) {
	dir := t.TempDir()
	server := control.NewServer(filepath.Join(dir, "control.sock"), testLogger())
	journalPath := filepath.Join(dir, "state.journal")
	writer, err := journal.Create(journalPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	publisher := &statePublisher{
		server:  server,
		metrics: metrics.New(),
		journal: writer,
		clock:   clock.Fake(time.Unix(1_700_000_000, 0)),
		logger:  testLogger(),
	}

	single := gpu.Snapshot{
		NumGPUs: 1,
		GPUs: []gpu.GPU{{
			Name:    "Intel® UHD Graphics 620",
			PathTag: "pci-0000_00_02_0",
			Default: true,
			Environment: []gpu.EnvVar{
				{Key: "DRI_PRIME", Value: "pci-0000_00_02_0"},
			},
		}},
	}
	publisher.PublishState(single, gpu.Change{Reason: gpu.ReasonSeed})
	// Byte-identical republish: no second entry.
	publisher.PublishState(single, gpu.Change{Reason: gpu.ReasonResync, PathTag: "pci-0000_00_02_0"})

	dual := single
	dual.HasDualGPU = true
	dual.NumGPUs = 2
	dual.GPUs = append([]gpu.GPU{{
		Name:    "NVIDIA Corporation GeForce GTX 1050 Ti",
		PathTag: "pci-0000_01_00_0",
		Environment: []gpu.EnvVar{
			{Key: "__GLX_VENDOR_LIBRARY_NAME", Value: "nvidia"},
		},
	}}, dual.GPUs...)
	publisher.PublishState(dual, gpu.Change{Reason: gpu.ReasonAdd, PathTag: "pci-0000_01_00_0"})

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := journal.ReadAll(journalPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries, want 2 (republish deduplicated)", len(entries))
	}
	if entries[0].NumGPUs != 1 || entries[1].NumGPUs != 2 {
		t.Errorf("entry GPU counts = %d, %d, want 1, 2",
			entries[0].NumGPUs, entries[1].NumGPUs)
	}
	if entries[0].Reason != "seed" || entries[1].Reason != "add" {
		t.Errorf("entry reasons = %q, %q, want seed, add",
			entries[0].Reason, entries[1].Reason)
	}

	// The final entry's digest matches the state the server holds.
	digest := server.Digest()
	if entries[1].Digest != hex.EncodeToString(digest[:]) {
		t.Errorf("journal digest = %s, want %s",
			entries[1].Digest, hex.EncodeToString(digest[:]))
	}
}

func TestStatePublisherWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	server := control.NewServer(filepath.Join(dir, "control.sock"), testLogger())

	publisher := &statePublisher{
		server:  server,
		metrics: metrics.New(),
		clock:   clock.Real(),
		logger:  testLogger(),
	}

	publisher.PublishState(gpu.Snapshot{NumGPUs: 1, GPUs: []gpu.GPU{{
		Name:    "Intel® UHD Graphics 620",
		PathTag: "pci-0000_00_02_0",
		Default: true,
	}}}, gpu.Change{Reason: gpu.ReasonSeed})

	var zero [32]byte
	if server.Digest() == zero {
		t.Error("server state should be installed even with journaling disabled")
	}
}
