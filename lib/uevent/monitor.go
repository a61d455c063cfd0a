// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package uevent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

const (
	// kernelEventGroup is the netlink multicast group the kernel
	// broadcasts raw uevents on. Group 2 carries udevd's processed
	// stream with a libudev framing header; we want the kernel feed.
	kernelEventGroup = 1

	// receiveBufferSize is the requested kernel-side socket buffer.
	// A hotplug burst (a dock bringing up several adapters) can
	// outrun the default; an overrun surfaces as ENOBUFS, which is
	// survivable but costs a resync.
	receiveBufferSize = 1 << 20

	// datagramSize is the read buffer for a single uevent datagram.
	// The kernel caps uevent payloads well below this.
	datagramSize = 8 << 10
)

// Monitor turns kernel uevents (NETLINK_KOBJECT_UEVENT) into DRM
// adapter add/remove events. Opening the socket is the one fatal
// setup step; once running, malformed or uninteresting events are
// skipped, never fatal.
type Monitor struct {
	scanner *Scanner
	logger  *slog.Logger

	fd        int
	closeOnce sync.Once
}

// OpenMonitor creates the netlink socket and subscribes to the
// kernel's uevent broadcast group. The scanner is used to re-probe
// adapters when their minors announce.
func OpenMonitor(scanner *Scanner, logger *slog.Logger) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("opening uevent socket: %w", err)
	}

	// Enlarge the receive buffer before events can pile up. The
	// forced variant needs CAP_NET_ADMIN; fall back to the clamped
	// setsockopt when running unprivileged.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, receiveBufferSize); err != nil {
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferSize)
	}

	if err := unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelEventGroup,
	}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding uevent socket: %w", err)
	}

	return &Monitor{scanner: scanner, logger: logger, fd: fd}, nil
}

// Close releases the netlink socket. Safe to call more than once.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		unix.Close(m.fd)
	})
	return nil
}

// Run reads kernel uevents and forwards DRM adapter changes to
// events. Blocks until ctx is cancelled (returning ctx.Err()) or the
// socket fails.
func (m *Monitor) Run(ctx context.Context, events chan<- gpu.DeviceEvent) error {
	// Unblock Recvfrom when the context is cancelled.
	go func() {
		<-ctx.Done()
		m.Close()
	}()

	buffer := make([]byte, datagramSize)
	for {
		n, from, err := unix.Recvfrom(m.fd, buffer, 0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOBUFS) {
				// The kernel dropped events we were too slow to
				// read. State converges again at the next resync.
				m.logger.Warn("uevent receive buffer overflowed, device state may lag until resync")
				continue
			}
			return fmt.Errorf("reading uevent socket: %w", err)
		}

		// Only kernel-originated messages; a udevd rebroadcast
		// carries the sender's nonzero PID.
		sender, ok := from.(*unix.SockaddrNetlink)
		if !ok || sender.Pid != 0 {
			continue
		}

		message, ok := parseUeventDatagram(buffer[:n])
		if !ok {
			continue
		}
		event, ok := m.translate(message)
		if !ok {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ueventMessage is one decoded kernel uevent: an "action@devpath"
// header followed by NUL-separated KEY=VALUE pairs.
type ueventMessage struct {
	Action  string
	DevPath string
	Env     map[string]string
}

// libudevPrefix marks datagrams from udevd's processed event stream.
// They should never arrive on the kernel group, but a stray one must
// not be misparsed as a device path.
var libudevPrefix = []byte("libudev\x00")

// parseUeventDatagram decodes a raw netlink uevent payload.
func parseUeventDatagram(data []byte) (ueventMessage, bool) {
	if bytes.HasPrefix(data, libudevPrefix) {
		return ueventMessage{}, false
	}

	fields := strings.Split(string(data), "\x00")
	action, devPath, found := strings.Cut(fields[0], "@")
	if !found || action == "" || !strings.HasPrefix(devPath, "/") {
		return ueventMessage{}, false
	}

	message := ueventMessage{
		Action:  action,
		DevPath: devPath,
		Env:     make(map[string]string, len(fields)),
	}
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found || key == "" {
			continue
		}
		message.Env[key] = value
	}
	return message, true
}

// translate maps a kernel uevent to a device event. Only DRM minor
// events are interesting; connector changes and other subsystems
// report ok=false.
func (m *Monitor) translate(message ueventMessage) (gpu.DeviceEvent, bool) {
	if message.Env["SUBSYSTEM"] != "drm" {
		return gpu.DeviceEvent{}, false
	}
	node := path.Base(message.DevPath)
	if !isCardNode(node) && !isRenderNode(node) {
		return gpu.DeviceEvent{}, false
	}
	// A DRM minor's devpath is <adapter>/drm/<node>. Connectors hang
	// off the card (<adapter>/drm/card0/card0-DP-1) and fail this
	// shape check; adapterless virtual minors pass it but fail the
	// probe below.
	if path.Base(path.Dir(message.DevPath)) != "drm" {
		return gpu.DeviceEvent{}, false
	}
	adapterDevPath := path.Dir(path.Dir(message.DevPath))

	switch message.Action {
	case "add", "change":
		// Re-probe on both minor kinds: the card and its render node
		// announce separately, and the adapter only classifies once
		// the render node exists.
		device, ok := m.scanner.probeAdapter(filepath.Join(m.scanner.sysRoot, adapterDevPath))
		if !ok {
			return gpu.DeviceEvent{}, false
		}
		return gpu.DeviceEvent{Kind: gpu.DeviceAdded, Device: device}, true
	case "remove":
		// Render nodes disappear alongside their card; acting on the
		// card alone avoids a double eviction.
		if !isCardNode(node) {
			return gpu.DeviceEvent{}, false
		}
		return gpu.DeviceEvent{
			Kind: gpu.DeviceRemoved,
			Device: gpu.RawDevice{
				Path:    adapterDevPath,
				PathTag: tagForVanishedAdapter(adapterDevPath),
			},
		}, true
	}
	return gpu.DeviceEvent{}, false
}
