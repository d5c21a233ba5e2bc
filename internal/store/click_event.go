package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relink/relink/internal/model"
)

// ClickEventStore provides database access for click events and their
// daily rollups. Events are append-only; nothing here mutates them.
type ClickEventStore struct {
	store *Store
}

// NewClickEventStore creates a new ClickEventStore.
func NewClickEventStore(store *Store) *ClickEventStore {
	return &ClickEventStore{store: store}
}

// BulkInsert appends a batch of click events. Stream redeliveries are
// suppressed via ON CONFLICT (event_id) DO NOTHING; distinct events for
// the same resolution double-click are legitimately kept.
func (s *ClickEventStore) BulkInsert(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO click_events (
			id, event_id, short_code, device_class, country_code,
			visitor_hash, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.ShortCode,
			string(event.DeviceClass),
			nullableString(event.CountryCode),
			event.VisitorHash,
			event.OccurredAt,
		)
	}

	results := s.store.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyStats recomputes and upserts daily rollups for every
// (short_code, day) touched by the batch.
func (s *ClickEventStore) UpdateDailyStats(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, key := range uniqueDailyKeys(events) {
		acc, err := s.recalculateDailyStat(ctx, key.shortCode, key.date)
		if err != nil {
			return fmt.Errorf("recalculate daily stat %s:%s: %w", key.shortCode, key.date.Format("2006-01-02"), err)
		}
		if err := s.upsertDailyStat(ctx, acc); err != nil {
			return fmt.Errorf("upsert daily stat %s:%s: %w", key.shortCode, key.date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// dailyStatsAccumulator accumulates stats for a single code/date combination.
type dailyStatsAccumulator struct {
	shortCode      string
	date           time.Time
	totalClicks    int64
	uniqueVisitors int64
	devices        map[string]int64
	countries      map[string]int64
	visitorSeen    map[string]bool
}

type dailyStatsKey struct {
	shortCode string
	date      time.Time
}

func uniqueDailyKeys(events []*model.ClickEvent) []dailyStatsKey {
	seen := make(map[string]dailyStatsKey)
	for _, event := range events {
		day := event.OccurredAt.UTC().Truncate(24 * time.Hour)
		key := fmt.Sprintf("%s:%s", event.ShortCode, day.Format("2006-01-02"))
		seen[key] = dailyStatsKey{shortCode: event.ShortCode, date: day}
	}

	keys := make([]dailyStatsKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	return keys
}

func (s *ClickEventStore) recalculateDailyStat(ctx context.Context, shortCode string, date time.Time) (*dailyStatsAccumulator, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT device_class, COALESCE(country_code, ''), visitor_hash
		FROM click_events
		WHERE short_code = $1 AND occurred_at >= $2 AND occurred_at < $3
	`

	rows, err := s.store.pool.Query(ctx, query, shortCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("query click events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.ClickEvent, 0)
	for rows.Next() {
		var device, country, visitorHash string
		if err := rows.Scan(&device, &country, &visitorHash); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		events = append(events, &model.ClickEvent{
			DeviceClass: model.DeviceClass(device),
			CountryCode: country,
			VisitorHash: visitorHash,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate click events: %w", err)
	}

	acc := accumulateDailyStats(events)
	acc.shortCode = shortCode
	acc.date = start
	return acc, nil
}

func accumulateDailyStats(events []*model.ClickEvent) *dailyStatsAccumulator {
	acc := &dailyStatsAccumulator{
		devices:     make(map[string]int64),
		countries:   make(map[string]int64),
		visitorSeen: make(map[string]bool),
	}

	for _, event := range events {
		acc.totalClicks++

		if event.VisitorHash != "" && !acc.visitorSeen[event.VisitorHash] {
			acc.visitorSeen[event.VisitorHash] = true
			acc.uniqueVisitors++
		}

		device := string(event.DeviceClass)
		if device == "" {
			device = string(model.DeviceOther)
		}
		acc.devices[device]++

		if event.CountryCode != "" {
			acc.countries[event.CountryCode]++
		}
	}

	return acc
}

// upsertDailyStat inserts or updates a daily_link_stats row.
func (s *ClickEventStore) upsertDailyStat(ctx context.Context, acc *dailyStatsAccumulator) error {
	deviceJSON, _ := json.Marshal(acc.devices)
	countryJSON, _ := json.Marshal(acc.countries)

	query := `
		INSERT INTO daily_link_stats (
			short_code, date, total_clicks, unique_visitors,
			device_breakdown, country_breakdown, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (short_code, date) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			device_breakdown = EXCLUDED.device_breakdown,
			country_breakdown = EXCLUDED.country_breakdown,
			updated_at = NOW()
	`

	_, err := s.store.pool.Exec(ctx, query,
		acc.shortCode,
		acc.date,
		acc.totalClicks,
		acc.uniqueVisitors,
		deviceJSON,
		countryJSON,
	)

	return err
}

// GetDailyStats retrieves rollups for a single code within a date range,
// ordered ascending by date. Days without clicks have no row.
func (s *ClickEventStore) GetDailyStats(ctx context.Context, shortCode string, from, to time.Time) ([]*model.DailyLinkStats, error) {
	query := `
		SELECT short_code, date, total_clicks, unique_visitors,
		       device_breakdown, country_breakdown, created_at, updated_at
		FROM daily_link_stats
		WHERE short_code = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	return s.queryDailyStats(ctx, query, shortCode, from, to)
}

// GetDailyStatsByOwner retrieves rollups across all of an owner's links,
// summed per day. Rollups for soft-deleted links are excluded.
func (s *ClickEventStore) GetDailyStatsByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]*model.DailyLinkStats, error) {
	query := `
		SELECT '' AS short_code, d.date,
		       SUM(d.total_clicks) AS total_clicks,
		       SUM(d.unique_visitors) AS unique_visitors,
		       NULL::jsonb, NULL::jsonb, MIN(d.created_at), MAX(d.updated_at)
		FROM daily_link_stats d
		JOIN links l ON l.short_code = d.short_code
		WHERE l.owner_id = $1 AND l.deleted_at IS NULL
		  AND d.date >= $2 AND d.date <= $3
		GROUP BY d.date
		ORDER BY d.date ASC
	`

	return s.queryDailyStats(ctx, query, ownerID, from, to)
}

func (s *ClickEventStore) queryDailyStats(ctx context.Context, query string, arg any, from, to time.Time) ([]*model.DailyLinkStats, error) {
	rows, err := s.store.pool.Query(ctx, query, arg, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.DailyLinkStats
	for rows.Next() {
		stat, err := scanDailyStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// GetDimensionCounts aggregates a JSONB breakdown column across a code's
// rollups in range, sorted by count descending.
func (s *ClickEventStore) GetDimensionCounts(ctx context.Context, shortCode, column string, from, to time.Time, limit int) ([]model.DimensionCount, error) {
	query := fmt.Sprintf(`
		SELECT key AS value, SUM(val::bigint) AS clicks
		FROM daily_link_stats, jsonb_each_text(%s) AS e(key, val)
		WHERE short_code = $1 AND date >= $2 AND date <= $3
		GROUP BY key
		ORDER BY clicks DESC
		LIMIT $4
	`, column)

	return s.queryDimensionCounts(ctx, query, shortCode, from, to, limit)
}

// GetDimensionCountsByOwner aggregates a breakdown column across all of
// an owner's links.
func (s *ClickEventStore) GetDimensionCountsByOwner(ctx context.Context, ownerID, column string, from, to time.Time, limit int) ([]model.DimensionCount, error) {
	query := fmt.Sprintf(`
		SELECT key AS value, SUM(val::bigint) AS clicks
		FROM daily_link_stats d
		JOIN links l ON l.short_code = d.short_code,
		LATERAL jsonb_each_text(d.%s) AS e(key, val)
		WHERE l.owner_id = $1 AND l.deleted_at IS NULL
		  AND d.date >= $2 AND d.date <= $3
		GROUP BY key
		ORDER BY clicks DESC
		LIMIT $4
	`, column)

	return s.queryDimensionCounts(ctx, query, ownerID, from, to, limit)
}

// GetSystemDimensionCounts aggregates a breakdown column across every link.
func (s *ClickEventStore) GetSystemDimensionCounts(ctx context.Context, column string, limit int) ([]model.DimensionCount, error) {
	query := fmt.Sprintf(`
		SELECT key AS value, SUM(val::bigint) AS clicks
		FROM daily_link_stats, jsonb_each_text(%s) AS e(key, val)
		GROUP BY key
		ORDER BY clicks DESC
		LIMIT $1
	`, column)

	rows, err := s.store.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query system dimension counts: %w", err)
	}
	defer rows.Close()

	return scanDimensionCounts(rows)
}

// TotalClicks sums all rollup clicks across the system. The rollups,
// not links.click_count, are the authoritative figure.
func (s *ClickEventStore) TotalClicks(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(total_clicks), 0) FROM daily_link_stats`

	var total int64
	if err := s.store.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total clicks: %w", err)
	}

	return total, nil
}

// CountEventsInRange counts raw click events for a code in [from, to).
// Used by reconciliation tooling to detect counter drift.
func (s *ClickEventStore) CountEventsInRange(ctx context.Context, shortCode string, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM click_events
		WHERE short_code = $1 AND occurred_at >= $2 AND occurred_at < $3
	`

	var count int64
	if err := s.store.pool.QueryRow(ctx, query, shortCode, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count click events: %w", err)
	}

	return count, nil
}

func (s *ClickEventStore) queryDimensionCounts(ctx context.Context, query string, arg any, from, to time.Time, limit int) ([]model.DimensionCount, error) {
	rows, err := s.store.pool.Query(ctx, query, arg, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query dimension counts: %w", err)
	}
	defer rows.Close()

	return scanDimensionCounts(rows)
}

func scanDimensionCounts(rows pgx.Rows) ([]model.DimensionCount, error) {
	var counts []model.DimensionCount
	for rows.Next() {
		var c model.DimensionCount
		if err := rows.Scan(&c.Value, &c.Clicks); err != nil {
			return nil, fmt.Errorf("scan dimension count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// scanDailyStat scans a row into DailyLinkStats.
func scanDailyStat(rows pgx.Rows) (*model.DailyLinkStats, error) {
	var stat model.DailyLinkStats
	var deviceJSON, countryJSON []byte

	err := rows.Scan(
		&stat.ShortCode,
		&stat.Date,
		&stat.TotalClicks,
		&stat.UniqueVisitors,
		&deviceJSON,
		&countryJSON,
		&stat.CreatedAt,
		&stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(deviceJSON) > 0 {
		_ = json.Unmarshal(deviceJSON, &stat.DeviceBreakdown)
	}
	if len(countryJSON) > 0 {
		_ = json.Unmarshal(countryJSON, &stat.CountryBreakdown)
	}

	return &stat, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
