package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const fpColumns = `id, visitor_id, fingerprint_hash, fuzzy_hash, stable_hash, gpu_timing_hash, components, entropy, confidence, is_farbled, created_at`

func scanFpRow(row interface {
	Scan(dest ...any) error
}) (FpRow, error) {
	var r FpRow
	var stableHash, gpuHash sql.NullString
	var createdAt string
	var isFarbled int
	if err := row.Scan(&r.ID, &r.VisitorID, &r.FingerprintHash, &r.FuzzyHash, &stableHash, &gpuHash, &r.Components, &r.Entropy, &r.Confidence, &isFarbled, &createdAt); err != nil {
		return FpRow{}, err
	}
	r.StableHash = stableHash.String
	r.GPUTimingHash = gpuHash.String
	r.IsFarbled = isFarbled != 0
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return FpRow{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

// FindFpByExactHash returns the most recently created fingerprint row whose
// fingerprint_hash matches, or nil if none exists. fingerprint_hash is
// indexed but not unique; ties break toward the newest row.
func (s *Store) FindFpByExactHash(fingerprintHex string) (*FpRow, error) {
	return s.findFpByColumn("fingerprint_hash", fingerprintHex)
}

// FindFpByStableHash returns the most recently created fingerprint row
// whose stable_hash matches. An empty stableHex never matches (treated as null).
func (s *Store) FindFpByStableHash(stableHex string) (*FpRow, error) {
	if stableHex == "" {
		return nil, nil
	}
	return s.findFpByColumn("stable_hash", stableHex)
}

// FindFpByGPUTimingHash returns the most recently created fingerprint row
// whose gpu_timing_hash matches. An empty gpuHex never matches.
func (s *Store) FindFpByGPUTimingHash(gpuHex string) (*FpRow, error) {
	if gpuHex == "" {
		return nil, nil
	}
	return s.findFpByColumn("gpu_timing_hash", gpuHex)
}

func (s *Store) findFpByColumn(column, value string) (*FpRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM fingerprints WHERE %s = ? ORDER BY created_at DESC, id DESC LIMIT 1`, fpColumns, column)
	row := s.reader.QueryRow(query, value)
	r, err := scanFpRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find fp by %s: %w", column, err)
	}
	return &r, nil
}

// CreateFingerprint writes a new fingerprint row under an existing visitor
// and returns its id.
func (s *Store) CreateFingerprint(visitorID string, rec FingerprintRecord) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.writer.Exec(
		`INSERT INTO fingerprints (id, visitor_id, fingerprint_hash, fuzzy_hash, stable_hash, gpu_timing_hash, components, entropy, confidence, is_farbled, created_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?)`,
		id, visitorID, rec.FingerprintHash, rec.FuzzyHash, rec.StableHash, rec.GPUTimingHash,
		rec.Components, rec.Entropy, rec.Confidence, boolToInt(rec.IsFarbled), now,
	)
	if err != nil {
		return "", fmt.Errorf("store: create fingerprint: %w", err)
	}
	return id, nil
}

// CreateVisitorWithFingerprint atomically creates a new visitor and its
// first fingerprint row, for the "new" terminal of the match state machine.
func (s *Store) CreateVisitorWithFingerprint(rec FingerprintRecord) (visitorID, fpID string, err error) {
	tx, err := s.writer.Begin()
	if err != nil {
		return "", "", fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	visitorID = uuid.NewString()
	fpID = uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.Exec(
		`INSERT INTO visitors (id, created_at, updated_at, trust_level, crowd_score, unique_ips, visit_count, last_score_update)
		 VALUES (?, ?, ?, 'NEW', 0.0, 0, 0, NULL)`,
		visitorID, now, now,
	)
	if err != nil {
		return "", "", fmt.Errorf("store: create visitor: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO fingerprints (id, visitor_id, fingerprint_hash, fuzzy_hash, stable_hash, gpu_timing_hash, components, entropy, confidence, is_farbled, created_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?)`,
		fpID, visitorID, rec.FingerprintHash, rec.FuzzyHash, rec.StableHash, rec.GPUTimingHash,
		rec.Components, rec.Entropy, rec.Confidence, boolToInt(rec.IsFarbled), now,
	)
	if err != nil {
		return "", "", fmt.Errorf("store: create initial fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("store: commit create visitor: %w", err)
	}
	return visitorID, fpID, nil
}

// ScanRecentStableHashes returns up to limit (fp_id, visitor_id, stable_hash)
// triples, most-recently-created first. This is a bounded, non-indexed scan:
// its limit is a policy constant sized for response-time budget, not recall.
func (s *Store) ScanRecentStableHashes(limit int) ([]ScanStableRow, error) {
	rows, err := s.reader.Query(
		`SELECT id, visitor_id, stable_hash FROM fingerprints
		 WHERE stable_hash IS NOT NULL AND stable_hash != ''
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: scan recent stable hashes: %w", err)
	}
	defer rows.Close()

	var out []ScanStableRow
	for rows.Next() {
		var r ScanStableRow
		if err := rows.Scan(&r.FpID, &r.VisitorID, &r.StableHash); err != nil {
			return nil, fmt.Errorf("store: scan recent stable hashes: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanRecentFuzzyHashes returns up to limit (fp_id, visitor_id, fuzzy_hash)
// triples, most-recently-created first.
func (s *Store) ScanRecentFuzzyHashes(limit int) ([]ScanFuzzyRow, error) {
	rows, err := s.reader.Query(
		`SELECT id, visitor_id, fuzzy_hash FROM fingerprints
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: scan recent fuzzy hashes: %w", err)
	}
	defer rows.Close()

	var out []ScanFuzzyRow
	for rows.Next() {
		var r ScanFuzzyRow
		if err := rows.Scan(&r.FpID, &r.VisitorID, &r.FuzzyHash); err != nil {
			return nil, fmt.Errorf("store: scan recent fuzzy hashes: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
