package store

import (
	"fmt"
	"time"
)

var matchTypeColumn = map[string]string{
	"exact":        "exact_count",
	"stable":       "stable_count",
	"gpu":          "gpu_count",
	"fuzzy_stable": "fuzzy_stable_count",
	"fuzzy":        "fuzzy_count",
	"new":          "new_count",
}

// UpsertDailyStats applies one request's deltas to the UTC-midnight row for
// date, creating it if absent. The per-match-type counter and the running
// entropy average are both maintained as atomic upserts so concurrent
// writers never lose an increment to a read-modify-write race.
func (s *Store) UpsertDailyStats(date time.Time, deltas DailyStatsDeltas) error {
	column, ok := matchTypeColumn[deltas.MatchType]
	if !ok {
		return fmt.Errorf("store: upsert daily stats: unknown match_type %q", deltas.MatchType)
	}
	day := date.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	uniqueDelta := 0
	if deltas.IsNewUnique {
		uniqueDelta = 1
	}

	query := fmt.Sprintf(`
		INSERT INTO daily_stats (date, total, unique_count, %s, avg_entropy, entropy_sample_count)
		VALUES (?, 1, ?, 1, ?, 1)
		ON CONFLICT(date) DO UPDATE SET
			total = total + 1,
			unique_count = unique_count + excluded.unique_count,
			%s = %s + 1,
			avg_entropy = ((avg_entropy * entropy_sample_count) + excluded.avg_entropy) / (entropy_sample_count + 1),
			entropy_sample_count = entropy_sample_count + 1
	`, column, column, column)

	_, err := s.writer.Exec(query, day, uniqueDelta, deltas.EntropySample)
	if err != nil {
		return fmt.Errorf("store: upsert daily stats: %w", err)
	}
	return nil
}
