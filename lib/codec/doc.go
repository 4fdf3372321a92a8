// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Chronik's standard CBOR encoding.
//
// All binary serialization in Chronik (trace export bundles, digest
// preimages) goes through this package so that encoding options are
// set once: Core Deterministic Encoding on the way out, and a decoder
// that maps any-typed values to map[string]any on the way in. Same
// logical data always produces identical bytes, which is what makes
// content digests over encoded records meaningful.
package codec
