package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fingerprintd.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(fingerprint, fuzzy, stable string) FingerprintRecord {
	return FingerprintRecord{
		FingerprintHash: fingerprint,
		FuzzyHash:       fuzzy,
		StableHash:      stable,
		Components:      `{}`,
		Entropy:         12.5,
		Confidence:      1.0,
	}
}

func TestCreateVisitorWithFingerprintAndFindExact(t *testing.T) {
	s := openTestStore(t)

	visitorID, fpID, err := s.CreateVisitorWithFingerprint(sampleRecord(
		repeat("a", 64), repeat("b", 64), repeat("c", 64),
	))
	if err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}
	if visitorID == "" || fpID == "" {
		t.Fatal("expected non-empty ids")
	}

	row, err := s.FindFpByExactHash(repeat("a", 64))
	if err != nil {
		t.Fatalf("FindFpByExactHash: %v", err)
	}
	if row == nil {
		t.Fatal("expected a row")
	}
	if row.VisitorID != visitorID || row.ID != fpID {
		t.Errorf("row = %+v, want visitor %s fp %s", row, visitorID, fpID)
	}
}

func TestFindFpByExactHashMostRecentWins(t *testing.T) {
	s := openTestStore(t)

	visitorID, _, err := s.CreateVisitorWithFingerprint(sampleRecord(repeat("a", 64), repeat("b", 64), ""))
	if err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	secondFpID, err := s.CreateFingerprint(visitorID, sampleRecord(repeat("a", 64), repeat("f", 64), ""))
	if err != nil {
		t.Fatalf("CreateFingerprint: %v", err)
	}

	row, err := s.FindFpByExactHash(repeat("a", 64))
	if err != nil {
		t.Fatalf("FindFpByExactHash: %v", err)
	}
	if row.ID != secondFpID {
		t.Errorf("expected the most recently created row to win, got %s want %s", row.ID, secondFpID)
	}
}

func TestFindFpByStableHashEmptyNeverMatches(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.CreateVisitorWithFingerprint(sampleRecord(repeat("a", 64), repeat("b", 64), "")); err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}
	row, err := s.FindFpByStableHash("")
	if err != nil {
		t.Fatalf("FindFpByStableHash: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil for empty stable hash, got %+v", row)
	}
}

func TestScanRecentFuzzyHashesMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	visitorID, _, err := s.CreateVisitorWithFingerprint(sampleRecord(repeat("a", 64), repeat("1", 64), ""))
	if err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := s.CreateFingerprint(visitorID, sampleRecord(repeat("b", 64), repeat("2", 64), "")); err != nil {
		t.Fatalf("CreateFingerprint: %v", err)
	}

	rows, err := s.ScanRecentFuzzyHashes(10)
	if err != nil {
		t.Fatalf("ScanRecentFuzzyHashes: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].FuzzyHash != repeat("2", 64) {
		t.Errorf("rows[0] = %+v, want the most recently created fuzzy hash first", rows[0])
	}
}

func TestCreateSessionAndRecentSessions(t *testing.T) {
	s := openTestStore(t)
	visitorID, fpID, err := s.CreateVisitorWithFingerprint(sampleRecord(repeat("a", 64), repeat("b", 64), ""))
	if err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}
	if _, err := s.CreateSession(visitorID, fpID, SessionMeta{IPAddress: "10.0.0.1"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sessions, err := s.RecentSessions(visitorID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].IPAddress != "10.0.0.1" {
		t.Errorf("IPAddress = %q, want 10.0.0.1", sessions[0].IPAddress)
	}
}

func TestUpsertDailyStatsAccumulates(t *testing.T) {
	s := openTestStore(t)
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	if err := s.UpsertDailyStats(day, DailyStatsDeltas{MatchType: "new", IsNewUnique: true, EntropySample: 10}); err != nil {
		t.Fatalf("UpsertDailyStats: %v", err)
	}
	if err := s.UpsertDailyStats(day, DailyStatsDeltas{MatchType: "exact", EntropySample: 20}); err != nil {
		t.Fatalf("UpsertDailyStats: %v", err)
	}

	var total, unique, newCount, exactCount int
	var avgEntropy float64
	row := s.Reader().QueryRow(`SELECT total, unique_count, new_count, exact_count, avg_entropy FROM daily_stats WHERE date = ?`, "2026-01-15")
	if err := row.Scan(&total, &unique, &newCount, &exactCount, &avgEntropy); err != nil {
		t.Fatalf("scan daily_stats: %v", err)
	}
	if total != 2 || unique != 1 || newCount != 1 || exactCount != 1 {
		t.Errorf("daily_stats = total:%d unique:%d new:%d exact:%d, want 2,1,1,1", total, unique, newCount, exactCount)
	}
	if avgEntropy != 15 {
		t.Errorf("avg_entropy = %v, want 15", avgEntropy)
	}
}

func TestUpdateVisitorTrustAndVisitorWithRecent(t *testing.T) {
	s := openTestStore(t)
	visitorID, fpID, err := s.CreateVisitorWithFingerprint(sampleRecord(repeat("a", 64), repeat("b", 64), ""))
	if err != nil {
		t.Fatalf("CreateVisitorWithFingerprint: %v", err)
	}
	if _, err := s.CreateSession(visitorID, fpID, SessionMeta{IPAddress: "10.0.0.2"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now().UTC()
	if err := s.UpdateVisitorTrust(visitorID, TrustUpdate{
		TrustLevel: "RETURNING", CrowdScore: 0.3, UniqueIPs: 1, VisitCount: 2, LastScoreUpdate: now,
	}); err != nil {
		t.Fatalf("UpdateVisitorTrust: %v", err)
	}

	view, err := s.VisitorWithRecent(visitorID, 10)
	if err != nil {
		t.Fatalf("VisitorWithRecent: %v", err)
	}
	if view.TrustLevel != "RETURNING" || view.VisitCount != 2 {
		t.Errorf("view = %+v, want trust_level RETURNING visit_count 2", view)
	}
	if len(view.RecentSessions) != 1 {
		t.Fatalf("len(RecentSessions) = %d, want 1", len(view.RecentSessions))
	}
}

func repeat(s string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = s[0]
	}
	return string(b)
}
