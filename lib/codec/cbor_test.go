// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// wireRecord mirrors the shape of control-socket payloads: lowercase
// cbor tags, nested slices.
type wireRecord struct {
	Name        string   `cbor:"name"`
	Environment []string `cbor:"environment"`
	Default     bool     `cbor:"default"`
}

func TestMarshalRoundtrip(t *testing.T) {
	original := wireRecord{
		Name:        "Intel® UHD Graphics 620 (Kabylake GT2)",
		Environment: []string{"DRI_PRIME", "pci-0000_00_02_0"},
		Default:     true,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded wireRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != original.Name || decoded.Default != original.Default {
		t.Errorf("roundtrip = %+v, want %+v", decoded, original)
	}
	if len(decoded.Environment) != 2 || decoded.Environment[0] != "DRI_PRIME" {
		t.Errorf("environment = %v, want %v", decoded.Environment, original.Environment)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Map iteration order must not leak into the encoding: the
	// deterministic mode sorts keys, so repeated encodings of the
	// same map are byte-identical. State deduplication depends on
	// this.
	value := map[string]any{
		"num_gpus":     2,
		"has_dual_gpu": true,
		"gpus":         []string{"a", "b"},
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal (iteration %d): %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding varies between runs:\n  %x\n  %x", first, again)
		}
	}
}

func TestDecoderStreamsConcatenatedValues(t *testing.T) {
	// The socket protocol and journal rely on CBOR being
	// self-delimiting: concatenated values decode one at a time with
	// no framing.
	var stream bytes.Buffer
	encoder := NewEncoder(&stream)
	for _, name := range []string{"first", "second", "third"} {
		if err := encoder.Encode(wireRecord{Name: name}); err != nil {
			t.Fatalf("Encode(%s): %v", name, err)
		}
	}

	decoder := NewDecoder(&stream)
	for _, want := range []string{"first", "second", "third"} {
		var record wireRecord
		if err := decoder.Decode(&record); err != nil {
			t.Fatalf("Decode (want %s): %v", want, err)
		}
		if record.Name != want {
			t.Errorf("decoded name = %q, want %q", record.Name, want)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type extended struct {
		Name  string `cbor:"name"`
		Extra int    `cbor:"extra"`
	}
	data, err := Marshal(extended{Name: "gpu", Extra: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var narrow wireRecord
	if err := Unmarshal(data, &narrow); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if narrow.Name != "gpu" {
		t.Errorf("name = %q, want gpu", narrow.Name)
	}
}
