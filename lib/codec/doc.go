// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used on the control socket
// and in the journal.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer representation, no indefinite-length
// items. Published state is deduplicated by the digest of its
// encoding, so the same logical snapshot must always produce
// identical bytes.
//
// CBOR values are self-delimiting, which is why the socket protocol
// and the journal need no framing layer: a stream is just encoded
// values back to back.
package codec
