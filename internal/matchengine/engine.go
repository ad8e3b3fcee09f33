// Package matchengine implements the six-layer match state machine that
// turns one fingerprint submission into a MatchResult, persisting the new
// fingerprint and session rows and updating stats and trust asynchronously.
package matchengine

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mowsen/fingerprint/internal/hashprim"
	"github.com/mowsen/fingerprint/internal/identity"
	"github.com/mowsen/fingerprint/internal/store"
	"github.com/mowsen/fingerprint/internal/trust"
)

// fpStore is the narrow store surface the engine needs for lookups and
// writes, so tests can supply an in-memory fake.
type fpStore interface {
	FindFpByExactHash(fingerprintHex string) (*store.FpRow, error)
	FindFpByStableHash(stableHex string) (*store.FpRow, error)
	FindFpByGPUTimingHash(gpuHex string) (*store.FpRow, error)
	CreateFingerprint(visitorID string, rec store.FingerprintRecord) (string, error)
	CreateVisitorWithFingerprint(rec store.FingerprintRecord) (visitorID, fpID string, err error)
	CreateSession(visitorID, fpID string, meta store.SessionMeta) (string, error)
	UpsertDailyStats(date time.Time, deltas store.DailyStatsDeltas) error
	UpdateVisitorTrust(visitorID string, u store.TrustUpdate) error
	VisitorWithRecent(visitorID string, n int) (store.VisitorView, error)
}

// scanStore is the bounded candidate-window surface for the fuzzy layers.
type scanStore interface {
	ScanRecentStableHashes(limit int) ([]store.ScanStableRow, error)
	ScanRecentFuzzyHashes(limit int) ([]store.ScanFuzzyRow, error)
}

// invalidator is implemented by store.RecencyCache.
type invalidator interface {
	Invalidate()
}

// scorer is the trust-scoring surface the engine calls fresh for every
// gating decision; it never reads the Scorer's own read-mostly cache.
type scorer interface {
	Score(visitorID string) (trust.Result, error)
}

// tokenValidator is implemented by identity.Signer.
type tokenValidator interface {
	Validate(token string) identity.Validation
}

// MetricsRecorder observes one completed Identify call. Implemented by
// internal/metrics.Collector; nil is a valid no-op.
type MetricsRecorder interface {
	RecordMatch(matchType string, confidence float64, elapsed time.Duration)
}

// Engine is the matching engine's single entry point, identify(submission).
type Engine struct {
	fp      fpStore
	scan    scanStore
	recency invalidator
	scorer  scorer
	signer  tokenValidator
	cfg     atomic.Pointer[Config]
	log     zerolog.Logger
	metrics MetricsRecorder
}

// New builds an Engine over its collaborators.
func New(fp fpStore, scan scanStore, recency invalidator, sc scorer, sg tokenValidator, cfg Config, log zerolog.Logger, metrics MetricsRecorder) *Engine {
	e := &Engine{fp: fp, scan: scan, recency: recency, scorer: sc, signer: sg, log: log, metrics: metrics}
	e.cfg.Store(&cfg)
	return e
}

// UpdateConfig swaps the engine's policy configuration in place. Safe to
// call concurrently with Identify; in-flight calls finish with whichever
// config they already read. The server secret and bind address are not
// part of Config and are never hot-reloaded this way.
func (e *Engine) UpdateConfig(cfg Config) {
	e.cfg.Store(&cfg)
}

// Identify runs the full state machine for one submission and returns the
// resulting MatchResult, or a typed error (InvalidSubmissionError,
// TimeoutError, StoreError) for failures on the critical path.
func (e *Engine) Identify(ctx context.Context, sub Submission, meta RequestMeta) (MatchResult, error) {
	start := time.Now()
	cfg := e.cfg.Load()

	if err := ctxErr(ctx, "pre-validation"); err != nil {
		return MatchResult{}, err
	}
	if err := validateSubmission(sub); err != nil {
		return MatchResult{}, err
	}

	gpuHash := ""
	if sub.GPUTimingHash != "" && sub.GPUTiming.Supported && sub.GPUTiming.Score > cfg.GPUScoreMin {
		gpuHash = sub.GPUTimingHash
	}

	var tokenVisitorID string
	var persistentOut *PersistentIdentityOut
	if sub.PersistentID != "" {
		v := e.signer.Validate(sub.PersistentID)
		if v.Valid {
			tokenVisitorID = v.VisitorID
			if v.NeedsRefresh {
				parsed, perr := identity.Parse(v.RefreshedToken)
				sig := ""
				if perr == nil {
					sig = parsed.Signature
				}
				persistentOut = &PersistentIdentityOut{ShouldUpdate: true, Signature: sig, Token: v.RefreshedToken}
			}
		}
		// An invalid or malformed token is handled locally: it is treated
		// as absent and never fails the request.
	}

	if err := ctxErr(ctx, "candidate lookup"); err != nil {
		return MatchResult{}, err
	}
	layer, base, candidateVisitorID, existingFpID, err := e.classify(sub, gpuHash, cfg)
	if err != nil {
		return MatchResult{}, err
	}

	isNewVisitor := false
	finalVisitorID := candidateVisitorID
	if tokenVisitorID != "" {
		finalVisitorID = tokenVisitorID
	} else if layer == MatchNew {
		isNewVisitor = true
	}

	var confidence float64
	if layer == MatchNew {
		confidence = 1.0
	} else {
		scoreSubject := finalVisitorID
		if scoreSubject == "" {
			scoreSubject = candidateVisitorID
		}
		result, serr := e.scorer.Score(scoreSubject)
		if serr != nil {
			return MatchResult{}, &StoreError{Op: "trust score", Err: serr}
		}
		if !trust.ShouldTrust(result, matchTypeKeyForTrust(layer)) {
			confidence = round3(0.7 * base)
		} else {
			confidence = round3(math.Min(1.0, base+trust.ConfidenceBoost(result, matchTypeKeyForTrust(layer))))
		}
	}

	if err := ctxErr(ctx, "persistence"); err != nil {
		return MatchResult{}, err
	}

	rec := store.FingerprintRecord{
		FingerprintHash: sub.Fingerprint,
		FuzzyHash:       sub.FuzzyHash,
		StableHash:      sub.StableHash,
		GPUTimingHash:   gpuHash,
		Components:      sub.Components,
		Entropy:         sub.Entropy,
		Confidence:      confidence,
		IsFarbled:       sub.IsFarbled,
	}

	var fpID string
	switch layer {
	case MatchExact:
		// Layer 1 reuses the existing row; no new fingerprint is written.
		fpID = existingFpID
	case MatchNew:
		if finalVisitorID != "" {
			// Visitor creation suppressed by a valid persistent-identity token.
			newID, werr := e.fp.CreateFingerprint(finalVisitorID, rec)
			if werr != nil {
				return MatchResult{}, &StoreError{Op: "create fingerprint", Err: werr}
			}
			fpID = newID
		} else {
			vid, newID, werr := e.fp.CreateVisitorWithFingerprint(rec)
			if werr != nil {
				return MatchResult{}, &StoreError{Op: "create visitor with fingerprint", Err: werr}
			}
			finalVisitorID, fpID = vid, newID
		}
		e.recency.Invalidate()
	default:
		// Layers 2-5: a new fingerprint row under the matched visitor.
		newID, werr := e.fp.CreateFingerprint(finalVisitorID, rec)
		if werr != nil {
			return MatchResult{}, &StoreError{Op: "create fingerprint", Err: werr}
		}
		fpID = newID
		e.recency.Invalidate()
	}

	if _, serr := e.fp.CreateSession(finalVisitorID, fpID, store.SessionMeta{
		IPAddress: meta.IPAddress, UserAgent: meta.UserAgent, Referer: meta.Referer,
		TLSJA4: meta.TLSJA4, TLSJA3: meta.TLSJA3,
	}); serr != nil {
		return MatchResult{}, &StoreError{Op: "create session", Err: serr}
	}

	go e.asyncSideEffects(finalVisitorID, layer, sub.Entropy)

	view, verr := e.fp.VisitorWithRecent(finalVisitorID, 10)
	if verr != nil {
		return MatchResult{}, &StoreError{Op: "visitor with recent", Err: verr}
	}

	if e.metrics != nil {
		e.metrics.RecordMatch(layer, confidence, time.Since(start))
	}

	return MatchResult{
		VisitorID:     finalVisitorID,
		FingerprintID: fpID,
		MatchType:     layer,
		Confidence:    confidence,
		IsNewVisitor:  isNewVisitor,
		Visitor:       view,
		Request: RequestEcho{
			Timestamp: sub.Timestamp,
			IPAddress: meta.IPAddress,
			Browser:   sub.DetectedBrowser,
		},
		PersistentIdentity: persistentOut,
	}, nil
}

// classify runs layers 1-5 in order and returns the first hit, or MatchNew
// if none matched.
func (e *Engine) classify(sub Submission, gpuHash string, cfg *Config) (layer string, base float64, visitorID string, fpID string, err error) {
	row, lerr := e.fp.FindFpByExactHash(sub.Fingerprint)
	if lerr != nil {
		return "", 0, "", "", &StoreError{Op: "find exact hash", Err: lerr}
	}
	if row != nil {
		return MatchExact, 1.00, row.VisitorID, row.ID, nil
	}

	if sub.StableHash != "" {
		row, lerr := e.fp.FindFpByStableHash(sub.StableHash)
		if lerr != nil {
			return "", 0, "", "", &StoreError{Op: "find stable hash", Err: lerr}
		}
		if row != nil {
			return MatchStable, 0.95, row.VisitorID, "", nil
		}
	}

	if gpuHash != "" {
		row, lerr := e.fp.FindFpByGPUTimingHash(gpuHash)
		if lerr != nil {
			return "", 0, "", "", &StoreError{Op: "find gpu timing hash", Err: lerr}
		}
		if row != nil {
			return MatchGPU, 0.92, row.VisitorID, "", nil
		}
	}

	if sub.StableHash != "" {
		rows, serr := e.scan.ScanRecentStableHashes(cfg.StableScanLimit)
		if serr != nil {
			return "", 0, "", "", &StoreError{Op: "scan recent stable hashes", Err: serr}
		}
		if vid, dist, ok := bestStableCandidate(sub.StableHash, rows, cfg.StableFuzzyThreshold); ok {
			return MatchFuzzyStable, 1 - float64(dist)/float64(hashprim.HexLen), vid, "", nil
		}
	}

	rows, serr := e.scan.ScanRecentFuzzyHashes(cfg.FuzzyScanLimit)
	if serr != nil {
		return "", 0, "", "", &StoreError{Op: "scan recent fuzzy hashes", Err: serr}
	}
	if vid, dist, ok := bestFuzzyCandidate(sub.FuzzyHash, rows, cfg.FuzzyThreshold); ok {
		return MatchFuzzy, 1 - float64(dist)/float64(hashprim.HexLen), vid, "", nil
	}

	return MatchNew, 1.00, "", "", nil
}

// bestStableCandidate returns the recency-ordered candidate with the
// smallest Hamming distance within threshold. Rows are already
// most-recent-first, so keeping the first strictly-smaller distance
// resolves ties toward the newest candidate. Length-mismatched rows
// (corrupted candidates) are skipped.
func bestStableCandidate(target string, rows []store.ScanStableRow, threshold int) (visitorID string, distance int, ok bool) {
	best := -1
	for _, r := range rows {
		d, derr := hashprim.Hamming(target, r.StableHash)
		if derr != nil {
			continue // length mismatch: skip this candidate
		}
		if d <= threshold && (best == -1 || d < best) {
			best, visitorID, ok = d, r.VisitorID, true
		}
	}
	return visitorID, best, ok
}

// bestFuzzyCandidate is bestStableCandidate's counterpart over the fuzzy scan.
func bestFuzzyCandidate(target string, rows []store.ScanFuzzyRow, threshold int) (visitorID string, distance int, ok bool) {
	best := -1
	for _, r := range rows {
		d, derr := hashprim.Hamming(target, r.FuzzyHash)
		if derr != nil {
			continue
		}
		if d <= threshold && (best == -1 || d < best) {
			best, visitorID, ok = d, r.VisitorID, true
		}
	}
	return visitorID, best, ok
}

// matchTypeKeyForTrust maps the response match type to the key the trust
// scorer's should-trust/confidence-boost tables use (hyphen folded to underscore).
func matchTypeKeyForTrust(matchType string) string {
	return dailyStatsKey(matchType)
}

// asyncSideEffects runs the daily-stats upsert and trust-cache update.
// Failures here are logged with enough context to diagnose and never
// surface to the request; per-request idempotence is best-effort, which is
// acceptable because the scorer can always be rerun authoritatively.
func (e *Engine) asyncSideEffects(visitorID, layer string, entropy float64) {
	now := time.Now().UTC()
	deltas := store.DailyStatsDeltas{
		MatchType:     matchTypeKeyForTrust(layer),
		IsNewUnique:   layer == MatchNew,
		EntropySample: entropy,
	}
	if err := e.fp.UpsertDailyStats(now, deltas); err != nil {
		e.log.Error().Err(err).Str("visitor_id", visitorID).Str("date", now.Format("2006-01-02")).Str("stage", "daily_stats_upsert").Msg("async side effect failed")
	}

	result, err := e.scorer.Score(visitorID)
	if err != nil {
		e.log.Error().Err(err).Str("visitor_id", visitorID).Str("stage", "trust_score").Msg("async side effect failed")
		return
	}
	upd := store.TrustUpdate{
		TrustLevel:      result.TrustLevel,
		CrowdScore:      result.Score,
		UniqueIPs:       result.UniqueIPs,
		VisitCount:      result.VisitCount,
		LastScoreUpdate: now,
	}
	if err := e.fp.UpdateVisitorTrust(visitorID, upd); err != nil {
		e.log.Error().Err(err).Str("visitor_id", visitorID).Str("stage", "trust_cache_update").Msg("async side effect failed")
	}
}

func validateSubmission(sub Submission) error {
	if !hashprim.IsHex64(sub.Fingerprint) {
		return &InvalidSubmissionError{Field: "fingerprint", Reason: "must be 64 hex characters"}
	}
	if !hashprim.IsHex64(sub.FuzzyHash) {
		return &InvalidSubmissionError{Field: "fuzzyHash", Reason: "must be 64 hex characters"}
	}
	if sub.StableHash != "" && !hashprim.IsHex64(sub.StableHash) {
		return &InvalidSubmissionError{Field: "stableHash", Reason: "must be 64 hex characters when present"}
	}
	if sub.GPUTimingHash != "" && !hashprim.IsHex64(sub.GPUTimingHash) {
		return &InvalidSubmissionError{Field: "gpuTimingHash", Reason: "must be 64 hex characters when present"}
	}
	return nil
}

func ctxErr(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return &TimeoutError{Op: op}
	default:
		return nil
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
