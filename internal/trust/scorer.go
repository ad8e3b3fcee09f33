// Package trust implements the crowd-blending trust scorer: deriving a
// per-visitor trust score from recent session history, and gating or
// boosting match confidence from it.
package trust

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mowsen/fingerprint/internal/store"
)

// Trust levels, coarsening the crowd-blending score for gating.
const (
	LevelNew       = "NEW"
	LevelReturning = "RETURNING"
	LevelTrusted   = "TRUSTED"
	LevelVerified  = "VERIFIED"
)

// Result is the scorer's output for one visitor.
type Result struct {
	Score      float64
	UniqueIPs  int
	VisitCount int
	DaySpan    int
	IsTrusted  bool
	TrustLevel string
}

// sessionLister is the store surface the scorer needs; narrowed so tests
// can supply fixtures without a full *store.Store.
type sessionLister interface {
	RecentSessions(visitorID string, since time.Time) ([]store.SessionLite, error)
}

// Scorer computes crowd-blending trust over a trailing window of sessions.
// It is read-only: the matching engine is solely responsible for persisting
// the result onto the Visitor row.
type Scorer struct {
	store      sessionLister
	windowDays int
	cache      *lru.Cache[string, Result]
	now        func() time.Time
}

// NewScorer builds a Scorer over store, evaluating the trailing windowDays
// of session history. cacheSize bounds the read-mostly Result cache; pass 0
// to disable caching.
func NewScorer(s sessionLister, windowDays, cacheSize int) (*Scorer, error) {
	var cache *lru.Cache[string, Result]
	if cacheSize > 0 {
		c, err := lru.New[string, Result](cacheSize)
		if err != nil {
			return nil, err
		}
		cache = c
	}
	return &Scorer{store: s, windowDays: windowDays, cache: cache, now: time.Now}, nil
}

// Score computes a fresh Result for visitorID. The matching engine always
// calls this directly; CachedScore is for read-mostly callers (e.g. a
// status endpoint) only.
func (s *Scorer) Score(visitorID string) (Result, error) {
	since := s.now().Add(-time.Duration(s.windowDays) * 24 * time.Hour)
	sessions, err := s.store.RecentSessions(visitorID, since)
	if err != nil {
		return Result{}, err
	}
	return score(sessions), nil
}

// CachedScore returns the last Score computed for visitorID if present in
// the cache, else computes and caches a fresh one. The matching engine's
// gating decisions must use Score, not this method, per the read-only
// contract: the cache on the Visitor row is updated by the engine, not here.
func (s *Scorer) CachedScore(visitorID string) (Result, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(visitorID); ok {
			return r, nil
		}
	}
	r, err := s.Score(visitorID)
	if err != nil {
		return Result{}, err
	}
	if s.cache != nil {
		s.cache.Add(visitorID, r)
	}
	return r, nil
}

func score(sessions []store.SessionLite) Result {
	if len(sessions) == 0 {
		return Result{TrustLevel: LevelNew}
	}

	visits := len(sessions)
	ipSet := make(map[string]struct{}, visits)
	earliest, latest := sessions[0].FirstSeen, sessions[0].FirstSeen
	for _, sess := range sessions {
		if sess.IPAddress != "" {
			ipSet[sess.IPAddress] = struct{}{}
		}
		if sess.FirstSeen.Before(earliest) {
			earliest = sess.FirstSeen
		}
		if sess.FirstSeen.After(latest) {
			latest = sess.FirstSeen
		}
	}
	uniqueIPs := len(ipSet)

	daySpan := int(math.Ceil(latest.Sub(earliest).Hours() / 24))
	if daySpan < 0 {
		daySpan = 0
	}

	visitFactor := 0.0
	switch {
	case visits >= 10:
		visitFactor = 0.4
	case visits >= 5:
		visitFactor = 0.3
	case visits >= 3:
		visitFactor = 0.2
	case visits >= 2:
		visitFactor = 0.1
	}

	ipFactor := 0.0
	switch {
	case uniqueIPs >= 3:
		ipFactor = 0.4
	case uniqueIPs >= 2:
		ipFactor = 0.3
	case uniqueIPs == 1 && visits >= 3:
		ipFactor = 0.1
	}

	timeFactor := 0.0
	switch {
	case daySpan >= 5:
		timeFactor = 0.2
	case daySpan >= 3:
		timeFactor = 0.15
	case daySpan >= 1:
		timeFactor = 0.1
	}

	rawScore := visitFactor + ipFactor + timeFactor
	roundedScore := math.Round(rawScore*100) / 100

	isTrusted := visits >= 3 && uniqueIPs >= 2

	var level string
	switch {
	case roundedScore >= 0.7:
		level = LevelVerified
	case isTrusted:
		level = LevelTrusted
	case visits >= 2:
		level = LevelReturning
	default:
		level = LevelNew
	}

	return Result{
		Score:      roundedScore,
		UniqueIPs:  uniqueIPs,
		VisitCount: visits,
		DaySpan:    daySpan,
		IsTrusted:  isTrusted,
		TrustLevel: level,
	}
}

// ShouldTrust gates a match of matchType given r. Hardware-grade layers and
// the "new" terminal are always trusted; a fuzzy match is suspect only once
// the visitor has accumulated enough history that IP diversity should
// already have shown up.
func ShouldTrust(r Result, matchType string) bool {
	if matchType != "fuzzy" {
		return true
	}
	return r.VisitCount <= 5 || r.Score >= 0.2
}

// confidenceBoostWeight is the per-match-type weight applied to r.Score to
// produce a confidence boost; weaker match types get a larger weight
// because weaker signals benefit most from corroborating history.
var confidenceBoostWeight = map[string]float64{
	"new":          0,
	"exact":        0.05,
	"stable":       0.10,
	"gpu":          0.08,
	"fuzzy_stable": 0.15,
	"fuzzy":        0.20,
}

// ConfidenceBoost returns the confidence boost for matchType given r.
func ConfidenceBoost(r Result, matchType string) float64 {
	return confidenceBoostWeight[matchType] * r.Score
}
