package trust

import (
	"testing"
	"time"

	"github.com/mowsen/fingerprint/internal/store"
)

type fakeSessions struct {
	byVisitor map[string][]store.SessionLite
}

func (f *fakeSessions) RecentSessions(visitorID string, since time.Time) ([]store.SessionLite, error) {
	var out []store.SessionLite
	for _, s := range f.byVisitor[visitorID] {
		if !s.FirstSeen.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestScoreZeroSessionsIsNew(t *testing.T) {
	f := &fakeSessions{byVisitor: map[string][]store.SessionLite{}}
	sc, err := NewScorer(f, 7, 0)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	r, err := sc.Score("v1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if r.Score != 0 || r.TrustLevel != LevelNew {
		t.Errorf("r = %+v, want score 0, level NEW", r)
	}
}

func TestScoreHighVisitsAndIPsVerified(t *testing.T) {
	base := time.Now()
	var sessions []store.SessionLite
	ips := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	for i := 0; i < 10; i++ {
		sessions = append(sessions, store.SessionLite{
			FirstSeen: base.Add(time.Duration(i) * 24 * time.Hour),
			IPAddress: ips[i%len(ips)],
		})
	}
	f := &fakeSessions{byVisitor: map[string][]store.SessionLite{"v1": sessions}}
	sc, err := NewScorer(f, 30, 0)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	r, err := sc.Score("v1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if r.TrustLevel != LevelVerified {
		t.Errorf("TrustLevel = %q, want VERIFIED for %+v", r.TrustLevel, r)
	}
}

func TestScoreMonotoneInVisits(t *testing.T) {
	base := time.Now()
	sessions := []store.SessionLite{
		{FirstSeen: base, IPAddress: "1.1.1.1"},
		{FirstSeen: base.Add(24 * time.Hour), IPAddress: "2.2.2.2"},
	}
	f := &fakeSessions{byVisitor: map[string][]store.SessionLite{"v1": sessions}}
	sc, _ := NewScorer(f, 30, 0)
	before, err := sc.Score("v1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	f.byVisitor["v1"] = append(f.byVisitor["v1"], store.SessionLite{
		FirstSeen: base.Add(48 * time.Hour), IPAddress: "3.3.3.3",
	})
	after, err := sc.Score("v1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if after.Score < before.Score {
		t.Errorf("adding a session decreased score: before=%v after=%v", before.Score, after.Score)
	}
}

func TestShouldTrustFuzzyGate(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		want   bool
	}{
		{"low visits always trusted", Result{VisitCount: 2, Score: 0.0}, true},
		{"many visits low score distrusted", Result{VisitCount: 8, Score: 0.1}, false},
		{"many visits high score trusted", Result{VisitCount: 8, Score: 0.2}, true},
	}
	for _, c := range cases {
		got := ShouldTrust(c.result, "fuzzy")
		if got != c.want {
			t.Errorf("%s: ShouldTrust = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestShouldTrustNonFuzzyAlwaysTrue(t *testing.T) {
	for _, mt := range []string{"exact", "stable", "gpu", "fuzzy_stable", "new"} {
		if !ShouldTrust(Result{VisitCount: 100, Score: 0}, mt) {
			t.Errorf("ShouldTrust(%s) = false, want true", mt)
		}
	}
}

func TestConfidenceBoostGrowsForWeakerMatchTypes(t *testing.T) {
	r := Result{Score: 1.0}
	exact := ConfidenceBoost(r, "exact")
	fuzzy := ConfidenceBoost(r, "fuzzy")
	if fuzzy <= exact {
		t.Errorf("fuzzy boost %v should exceed exact boost %v", fuzzy, exact)
	}
	if ConfidenceBoost(r, "new") != 0 {
		t.Error("new match type should have zero boost")
	}
}
