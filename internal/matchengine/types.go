package matchengine

import "github.com/mowsen/fingerprint/internal/store"

// Match type names, used both as the public MatchType in MatchResult and
// (with hyphens folded to underscores) as the daily-stats column key.
const (
	MatchExact       = "exact"
	MatchStable      = "stable"
	MatchGPU         = "gpu"
	MatchFuzzyStable = "fuzzy-stable"
	MatchFuzzy       = "fuzzy"
	MatchNew         = "new"
)

// GPUTiming is the submission's GPU-timing validity envelope; the raw hash
// is only usable when Supported is true and Score exceeds the configured
// minimum.
type GPUTiming struct {
	Supported bool
	Score     float64
}

// Submission is one opaque fingerprint submission from the (excluded)
// client-side collector.
type Submission struct {
	Fingerprint     string // required, hex64
	FuzzyHash       string // required, hex64
	StableHash      string // optional, hex64 when present
	GPUTimingHash   string // optional, hex64 when present
	GPUTiming       GPUTiming
	Components      string // opaque JSON, retained verbatim
	Entropy         float64
	DetectedBrowser string
	PersistentID    string // "vid.sig.ms", optional
	Timestamp       int64  // client ms since epoch; informational only
	IsFarbled       bool   // privacy-tool perturbation detected; not used in matching
}

// RequestMeta is the transport-layer metadata persisted on the session row.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Referer   string
	TLSJA4    string
	TLSJA3    string
}

// RequestEcho is the subset of request metadata echoed back in the response.
type RequestEcho struct {
	Timestamp int64
	IPAddress string
	Browser   string
}

// PersistentIdentityOut carries a refreshed token when the inbound one
// needed one. Token is the full "vid.sig.ms" string; Signature is just its
// hex16 signature component, matching the response schema's "signature" field.
type PersistentIdentityOut struct {
	ShouldUpdate bool
	Signature    string
	Token        string
}

// MatchResult is the matching engine's verdict for one submission.
type MatchResult struct {
	VisitorID          string
	FingerprintID      string
	MatchType          string
	Confidence         float64
	IsNewVisitor       bool
	Visitor            store.VisitorView
	Request            RequestEcho
	PersistentIdentity *PersistentIdentityOut
}

// Config is the matching engine's policy configuration, resolved once at
// startup (spec.md §6.4) and safe to hot-reload for everything except the
// server secret and bind address.
type Config struct {
	FuzzyScanLimit        int
	StableScanLimit       int
	FuzzyThreshold        int
	StableFuzzyThreshold  int
	GPUScoreMin           float64
	TrustWindowDays       int // not read by the engine; the trust scorer keeps the window it was built with
}

// DefaultConfig returns the configuration defaults from spec.md §6.4.
func DefaultConfig() Config {
	return Config{
		FuzzyScanLimit:       1000,
		StableScanLimit:      500,
		FuzzyThreshold:       8,
		StableFuzzyThreshold: 4,
		GPUScoreMin:          0.1,
		TrustWindowDays:      7,
	}
}

func dailyStatsKey(matchType string) string {
	out := make([]byte, len(matchType))
	for i := 0; i < len(matchType); i++ {
		if matchType[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = matchType[i]
		}
	}
	return string(out)
}
