// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"github.com/xzl01/switcheroo-control/lib/codec"
	"github.com/xzl01/switcheroo-control/lib/gpu"
)

// Actions understood by the control socket.
const (
	// ActionState returns the current GPU state in a single response.
	ActionState = "state"

	// ActionWatch streams the current state immediately, then one
	// response per subsequent state change, until the client closes
	// the connection.
	ActionWatch = "watch"

	// ActionPing checks daemon liveness. The response carries no data.
	ActionPing = "ping"
)

// Request is the wire envelope for control requests. The protocol
// needs no per-action parameters beyond the action name.
type Request struct {
	Action string `cbor:"action"`
}

// Response is the wire envelope for everything the server sends. A
// watch subscription receives one Response per state change; every
// other action receives exactly one.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// GPURecord is the wire form of one GPU. The environment is a flat
// alternating key/value list: [k1, v1, k2, v2, ...]. Consumers apply
// the variables in list order.
type GPURecord struct {
	Name        string   `cbor:"name"`
	Environment []string `cbor:"environment"`
	Default     bool     `cbor:"default"`
}

// State is the wire form of the full GPU state. GPUs keep the
// snapshot's ordering: non-default entries first, the default entry
// last.
type State struct {
	HasDualGPU bool        `cbor:"has_dual_gpu"`
	NumGPUs    uint32      `cbor:"num_gpus"`
	GPUs       []GPURecord `cbor:"gpus"`
}

// FlattenState converts a registry snapshot to its wire form,
// flattening each GPU's ordered environment into the alternating
// key/value list.
func FlattenState(snapshot gpu.Snapshot) State {
	state := State{
		HasDualGPU: snapshot.HasDualGPU,
		NumGPUs:    uint32(snapshot.NumGPUs),
		GPUs:       make([]GPURecord, 0, len(snapshot.GPUs)),
	}
	for _, entry := range snapshot.GPUs {
		record := GPURecord{
			Name:        entry.Name,
			Environment: make([]string, 0, len(entry.Environment)*2),
			Default:     entry.Default,
		}
		for _, variable := range entry.Environment {
			record.Environment = append(record.Environment, variable.Key, variable.Value)
		}
		state.GPUs = append(state.GPUs, record)
	}
	return state
}

// EnvironmentStrings returns the record's environment as "KEY=VALUE"
// entries in wire order, ready to append to an exec environment. A
// trailing unpaired key is ignored.
func (r GPURecord) EnvironmentStrings() []string {
	entries := make([]string, 0, len(r.Environment)/2)
	for i := 0; i+1 < len(r.Environment); i += 2 {
		entries = append(entries, r.Environment[i]+"="+r.Environment[i+1])
	}
	return entries
}
