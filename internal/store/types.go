package store

import "time"

// FpRow is a persisted fingerprint record as read back from the store.
type FpRow struct {
	ID              string
	VisitorID       string
	FingerprintHash string
	FuzzyHash       string
	StableHash      string // "" means null; never matched on
	GPUTimingHash   string // "" means null
	Components      string // opaque JSON, retained verbatim
	Entropy         float64
	Confidence      float64
	IsFarbled       bool
	CreatedAt       time.Time
}

// FingerprintRecord is the input to CreateFingerprint / CreateVisitorWithFingerprint.
type FingerprintRecord struct {
	FingerprintHash string
	FuzzyHash       string
	StableHash      string
	GPUTimingHash   string
	Components      string
	Entropy         float64
	Confidence      float64
	IsFarbled       bool
}

// SessionMeta is the request-transport metadata persisted on a session row.
type SessionMeta struct {
	IPAddress string
	UserAgent string
	Referer   string
	TLSJA4    string
	TLSJA3    string
}

// SessionLite is the subset of a session row the trust scorer consumes.
type SessionLite struct {
	ID        string
	FirstSeen time.Time
	IPAddress string // "" means the request carried no IP
}

// ScanStableRow is one candidate row from a recent-stable-hash scan.
type ScanStableRow struct {
	FpID       string
	VisitorID  string
	StableHash string
}

// ScanFuzzyRow is one candidate row from a recent-fuzzy-hash scan.
type ScanFuzzyRow struct {
	FpID      string
	VisitorID string
	FuzzyHash string
}

// TrustUpdate is the visitor trust-cache payload written by the matching
// engine after each decision.
type TrustUpdate struct {
	TrustLevel      string
	CrowdScore      float64
	UniqueIPs       int
	VisitCount      int
	LastScoreUpdate time.Time
}

// RecentSessionView is one entry in VisitorView's recent-visits list.
type RecentSessionView struct {
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// VisitorView is the read-only payload the HTTP layer serializes for a visitor.
type VisitorView struct {
	ID              string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TrustLevel      string
	CrowdScore      float64
	UniqueIPs       int
	VisitCount      int
	LastScoreUpdate *time.Time
	RecentSessions  []RecentSessionView
}

// DailyStatsDeltas are the increments upsert_daily_stats applies to one
// UTC-midnight date row.
type DailyStatsDeltas struct {
	MatchType     string // "exact" | "stable" | "gpu" | "fuzzy_stable" | "fuzzy" | "new"
	IsNewUnique   bool   // increments unique_count, only true for match_type "new"
	EntropySample float64
}
