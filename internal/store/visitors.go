package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpdateVisitorTrust writes the trust scorer's output onto the visitor row.
// Concurrent updates for the same visitor are last-writer-wins; the scorer
// remains the authority and can always be rerun.
func (s *Store) UpdateVisitorTrust(visitorID string, u TrustUpdate) error {
	_, err := s.writer.Exec(
		`UPDATE visitors SET trust_level = ?, crowd_score = ?, unique_ips = ?, visit_count = ?, last_score_update = ?, updated_at = ?
		 WHERE id = ?`,
		u.TrustLevel, u.CrowdScore, u.UniqueIPs, u.VisitCount,
		u.LastScoreUpdate.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
		visitorID,
	)
	if err != nil {
		return fmt.Errorf("store: update visitor trust: %w", err)
	}
	return nil
}

// VisitorWithRecent reads back a visitor plus its n most recent sessions,
// for the HTTP response payload.
func (s *Store) VisitorWithRecent(visitorID string, n int) (VisitorView, error) {
	var v VisitorView
	var createdAt, updatedAt string
	var lastScoreUpdate sql.NullString

	row := s.reader.QueryRow(
		`SELECT id, created_at, updated_at, trust_level, crowd_score, unique_ips, visit_count, last_score_update
		 FROM visitors WHERE id = ?`, visitorID,
	)
	if err := row.Scan(&v.ID, &createdAt, &updatedAt, &v.TrustLevel, &v.CrowdScore, &v.UniqueIPs, &v.VisitCount, &lastScoreUpdate); err != nil {
		if err == sql.ErrNoRows {
			return VisitorView{}, fmt.Errorf("store: visitor %s not found", visitorID)
		}
		return VisitorView{}, fmt.Errorf("store: visitor with recent: %w", err)
	}

	ca, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return VisitorView{}, fmt.Errorf("store: parse created_at: %w", err)
	}
	ua, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return VisitorView{}, fmt.Errorf("store: parse updated_at: %w", err)
	}
	v.CreatedAt, v.UpdatedAt = ca, ua

	if lastScoreUpdate.Valid && lastScoreUpdate.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastScoreUpdate.String)
		if err == nil {
			v.LastScoreUpdate = &t
		}
	}

	rows, err := s.reader.Query(
		`SELECT s.first_seen, s.ip_address, s.user_agent FROM sessions s
		 WHERE s.visitor_id = ? ORDER BY s.first_seen DESC LIMIT ?`, visitorID, n,
	)
	if err != nil {
		return VisitorView{}, fmt.Errorf("store: recent sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var firstSeen string
		var ip, ua sql.NullString
		if err := rows.Scan(&firstSeen, &ip, &ua); err != nil {
			return VisitorView{}, fmt.Errorf("store: scan recent session: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, firstSeen)
		if err != nil {
			continue
		}
		v.RecentSessions = append(v.RecentSessions, RecentSessionView{
			Timestamp: ts,
			IPAddress: ip.String,
			UserAgent: ua.String,
		})
	}
	return v, rows.Err()
}
