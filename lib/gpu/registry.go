// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"sort"
	"sync"
)

// Registry holds the current GPU set keyed by path tag. Internally it
// is unordered; ordering is a property of the [Snapshot] computed on
// demand.
//
// The registry serializes all access through a mutex, but the intended
// discipline is stricter: a single writer (the [Coordinator]) performs
// every mutation, and readers consume only snapshots. Default
// designation follows the rules in Add and Remove — notably, removing
// the default GPU does not promote a survivor. That asymmetry is
// deliberate and covered by tests: defaults are only (re)computed on
// Add, so a machine that loses its primary adapter keeps reporting no
// default until the next device arrival.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	nextSeq uint64
}

// registryEntry pairs a GPU with its discovery sequence number. The
// sequence drives snapshot ordering (most recently discovered first
// among non-defaults) and survives in-place replacement, so a device
// that is re-announced keeps its position.
type registryEntry struct {
	gpu GPU
	seq uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Add inserts or replaces the entry keyed by the GPU's path tag.
//
// Default maintenance happens here and only here: a newly added
// default demotes any previous default (at most one default exists at
// any time), and when the insertion leaves the registry holding
// exactly one GPU with no default among them, that sole GPU is
// promoted — a machine with a single known GPU always has a launch
// default, whatever its boot flag said.
func (r *Registry) Add(g GPU) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[g.PathTag]; ok {
		existing.gpu = g
	} else {
		r.nextSeq++
		r.entries[g.PathTag] = &registryEntry{gpu: g, seq: r.nextSeq}
	}

	if g.Default {
		for tag, entry := range r.entries {
			if tag != g.PathTag && entry.gpu.Default {
				entry.gpu.Default = false
			}
		}
		return
	}

	if len(r.entries) == 1 && !r.anyDefaultLocked() {
		r.entries[g.PathTag].gpu.Default = true
	}
}

// Remove deletes the entry for pathTag and reports whether anything
// was removed. Unknown tags are a no-op. No re-promotion occurs when
// the removed GPU was the default.
func (r *Registry) Remove(pathTag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[pathTag]; !ok {
		return false
	}
	delete(r.entries, pathTag)
	return true
}

// Len returns the number of registered GPUs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// PathTags returns the set of registered path tags. Used by the
// resync reconcile to diff the registry against a fresh device scan.
func (r *Registry) PathTags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Snapshot computes the derived view: the GPU count, the dual-GPU
// flag, and the ordered GPU list — non-default entries first in
// reverse discovery order, the default entry last. The returned
// snapshot owns its slices; later mutations cannot reach it.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.gpu.Default != b.gpu.Default {
			return !a.gpu.Default
		}
		return a.seq > b.seq
	})

	gpus := make([]GPU, len(ordered))
	for i, entry := range ordered {
		gpus[i] = entry.gpu
		gpus[i].Environment = append([]EnvVar(nil), entry.gpu.Environment...)
	}

	return Snapshot{
		HasDualGPU: len(gpus) >= 2,
		NumGPUs:    len(gpus),
		GPUs:       gpus,
	}
}

func (r *Registry) anyDefaultLocked() bool {
	for _, entry := range r.entries {
		if entry.gpu.Default {
			return true
		}
	}
	return false
}
