// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the daemon's query surface: a CBOR
// request-response protocol on a Unix socket, plus a streaming watch
// subscription for state-change notification.
//
// Each connection carries exactly one request. For the unary actions
// (state, ping) the server writes a single response envelope and the
// connection closes. The watch action holds the connection open and
// pushes a response envelope for every distinct published state.
//
// The server is also the daemon's publish boundary. Update installs a
// freshly encoded state, deduplicates it against the previous one by
// content digest, and fans it out to watch subscribers. Two states
// that encode to identical bytes are the same state; republishing one
// is a no-op that subscribers never observe.
package control
