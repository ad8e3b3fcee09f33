package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mowsen/fingerprint/internal/matchengine"
)

// HexSeed returns a deterministic 64-hex-char string derived from seed, for
// use as a fingerprint/fuzzy/stable hash in tests.
func HexSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// SampleSubmission returns a valid fingerprint submission keyed by seed: its
// fingerprint, fuzzy hash, and stable hash are each derived from seed plus a
// distinguishing suffix, so distinct seeds never collide across layers.
func SampleSubmission(seed string) matchengine.Submission {
	return matchengine.Submission{
		Fingerprint:     HexSeed(seed + ":fingerprint"),
		FuzzyHash:       HexSeed(seed + ":fuzzy"),
		StableHash:      HexSeed(seed + ":stable"),
		Entropy:         18.4,
		DetectedBrowser: "Chrome",
		Timestamp:       1700000000000,
	}
}

// SampleRequestMeta returns request metadata for testing, with the given
// synthetic client IP.
func SampleRequestMeta(ip string) matchengine.RequestMeta {
	return matchengine.RequestMeta{
		IPAddress: ip,
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/120.0",
		Referer:   "https://example.com/",
	}
}

// FlipHexChar returns hash with the character at position i replaced by a
// different hex digit, for constructing near-miss fuzzy-hash fixtures.
func FlipHexChar(hash string, i int) string {
	b := []byte(hash)
	if b[i] == '0' {
		b[i] = '1'
	} else {
		b[i] = '0'
	}
	return string(b)
}

// WithFuzzyDistance returns a fuzzy hash differing from base in exactly n
// positions (positions 0..n-1), for exercising the fuzzy-threshold boundary.
func WithFuzzyDistance(base string, n int) string {
	b := []byte(base)
	for i := 0; i < n && i < len(b); i++ {
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

// SampleComponentsJSON returns an opaque per-module components bag, encoded
// as the raw JSON string the engine retains verbatim.
func SampleComponentsJSON(n int) string {
	return fmt.Sprintf(`{"canvas":"sample-%d","audio":"sample-%d","fonts":["Arial","Helvetica"]}`, n, n)
}
