package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession writes exactly one session row referencing (visitorID, fpID)
// and the request transport metadata. The matching engine writes at most
// one of these per request.
func (s *Store) CreateSession(visitorID, fpID string, meta SessionMeta) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.writer.Exec(
		`INSERT INTO sessions (id, visitor_id, fingerprint_id, ip_address, user_agent, referer, tls_ja4, tls_ja3, first_seen, last_seen)
		 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)`,
		id, visitorID, fpID, meta.IPAddress, meta.UserAgent, meta.Referer, meta.TLSJA4, meta.TLSJA3, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

// RecentSessions returns the fields the trust scorer needs for sessions of
// visitorID with first_seen at or after since.
func (s *Store) RecentSessions(visitorID string, since time.Time) ([]SessionLite, error) {
	rows, err := s.reader.Query(
		`SELECT id, first_seen, ip_address FROM sessions
		 WHERE visitor_id = ? AND first_seen >= ? ORDER BY first_seen ASC`,
		visitorID, since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionLite
	for rows.Next() {
		var sess SessionLite
		var firstSeen string
		var ip sql.NullString
		if err := rows.Scan(&sess.ID, &firstSeen, &ip); err != nil {
			return nil, fmt.Errorf("store: scan recent session: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, firstSeen)
		if err != nil {
			continue
		}
		sess.FirstSeen = t
		sess.IPAddress = ip.String
		out = append(out, sess)
	}
	return out, rows.Err()
}
