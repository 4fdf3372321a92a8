// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/chronik-dev/chronik/lib/codec"
	"github.com/chronik-dev/chronik/lib/schema"
)

// BundleExtension is the file suffix for exported trace bundles.
const BundleExtension = ".trace.zst"

// Bundle is the standalone export form of a trace: metadata plus the
// full event capture, encoded as deterministic CBOR and compressed
// with zstd.
type Bundle struct {
	Trace  schema.SessionTrace `cbor:"trace"`
	Events []schema.TraceEvent `cbor:"events"`
}

// eventsDomainKey is the BLAKE3 keyed-hash domain for trace event
// digests. The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes: readable in hex dumps without sacrificing
// any cryptographic property. Changing it invalidates every stored
// digest.
var eventsDomainKey = [32]byte{
	'c', 'h', 'r', 'o', 'n', 'i', 'k', '.', 't', 'r', 'a', 'c', 'e', '.',
	'e', 'v', 'e', 'n', 't', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// zstd encoder/decoder are reused across calls; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("trace: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("trace: zstd decoder initialization failed: " + err.Error())
	}
}

// digestEvents computes the hex keyed BLAKE3 digest of the encoded
// events file.
func digestEvents(data []byte) string {
	hasher, err := blake3.NewKeyed(eventsDomainKey[:])
	if err != nil {
		// NewKeyed fails only for wrong key length, which the fixed
		// array size rules out.
		panic("trace: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Export writes a trace and its events as a bundle file at outPath.
// The conventional file name is the trace id plus BundleExtension.
func (s *Store) Export(traceID, outPath string) error {
	trace, err := s.Get(traceID)
	if err != nil {
		return err
	}
	events, err := s.Events(traceID)
	if err != nil {
		return err
	}

	encoded, err := codec.Marshal(Bundle{Trace: trace, Events: events})
	if err != nil {
		return fmt.Errorf("encoding bundle for %s: %w", traceID, err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)
	if err := os.WriteFile(outPath, compressed, 0644); err != nil {
		return fmt.Errorf("writing bundle %s: %w", outPath, err)
	}
	s.logger.Info("trace exported", "trace_id", traceID, "path", outPath,
		"bytes", len(compressed))
	return nil
}

// ReadBundle reads an exported bundle and verifies its events against
// the digest the trace was saved with. A digest mismatch means the
// capture was altered after export and is an error.
func ReadBundle(bundlePath string) (Bundle, error) {
	compressed, err := os.ReadFile(bundlePath)
	if err != nil {
		return Bundle{}, err
	}
	encoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return Bundle{}, fmt.Errorf("decompressing %s: %w", bundlePath, err)
	}
	var bundle Bundle
	if err := codec.Unmarshal(encoded, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("decoding %s: %w", bundlePath, err)
	}

	if bundle.Trace.EventsDigest != "" {
		lines, err := eventsJSONL(bundle.Events)
		if err != nil {
			return Bundle{}, fmt.Errorf("re-encoding events from %s: %w", bundlePath, err)
		}
		if got := digestEvents(lines); got != bundle.Trace.EventsDigest {
			return Bundle{}, fmt.Errorf("bundle %s: events digest mismatch (stored %s, computed %s)",
				bundlePath, bundle.Trace.EventsDigest, got)
		}
	}
	return bundle, nil
}
