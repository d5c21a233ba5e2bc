// Package aggregator turns click events into reporting-ready statistics
// at query time. All operations are read-only, run off the redirect
// path, and are served from pre-bucketed daily rollups so large ranges
// never scan raw events.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relink/relink/internal/model"
)

// Dimension selects a breakdown axis for ByDimension queries.
type Dimension string

const (
	DimensionDevice   Dimension = "device"
	DimensionLocation Dimension = "location"
)

// Errors returned by aggregator queries.
var (
	ErrInvalidQuery     = errors.New("exactly one of short code or owner must be set")
	ErrInvalidRange     = errors.New("range must be between 1 and 366 days")
	ErrUnknownDimension = errors.New("unknown dimension")
)

const (
	maxRangeDays = 366
	// TopNLimit caps dimensional breakdowns surfaced to callers.
	TopNLimit = 10
)

// Query selects whose clicks to aggregate: one short code or all links
// of one owner. Exactly one field must be set.
type Query struct {
	ShortCode string
	OwnerID   string
}

func (q Query) validate() error {
	if (q.ShortCode == "") == (q.OwnerID == "") {
		return ErrInvalidQuery
	}
	return nil
}

// StatsSource reads pre-bucketed rollups. The counter on links plays no
// part here; rollups are the authoritative figures and may briefly lag
// the denormalized count.
type StatsSource interface {
	GetDailyStats(ctx context.Context, shortCode string, from, to time.Time) ([]*model.DailyLinkStats, error)
	GetDailyStatsByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]*model.DailyLinkStats, error)
	GetDimensionCounts(ctx context.Context, shortCode, column string, from, to time.Time, limit int) ([]model.DimensionCount, error)
	GetDimensionCountsByOwner(ctx context.Context, ownerID, column string, from, to time.Time, limit int) ([]model.DimensionCount, error)
	GetSystemDimensionCounts(ctx context.Context, column string, limit int) ([]model.DimensionCount, error)
	TotalClicks(ctx context.Context) (int64, error)
}

// LinkCounter counts links that can currently serve redirects.
type LinkCounter interface {
	CountActiveLinks(ctx context.Context) (int64, error)
}

// Aggregator answers analytics queries from rollups.
type Aggregator struct {
	stats StatsSource
	links LinkCounter
	now   func() time.Time
}

// New creates an Aggregator.
func New(stats StatsSource, links LinkCounter) *Aggregator {
	return &Aggregator{
		stats: stats,
		links: links,
		now:   time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (a *Aggregator) SetNow(now func() time.Time) {
	a.now = now
}

// TimeSeries returns one entry per calendar day for the trailing
// rangeDays window ending today (UTC), ascending by date. Days without
// clicks are present with an explicit zero; callers never interpolate.
func (a *Aggregator) TimeSeries(ctx context.Context, q Query, rangeDays int) ([]model.DailyCount, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if rangeDays < 1 || rangeDays > maxRangeDays {
		return nil, ErrInvalidRange
	}

	to := a.today()
	from := to.AddDate(0, 0, -(rangeDays - 1))

	var stats []*model.DailyLinkStats
	var err error
	if q.ShortCode != "" {
		stats, err = a.stats.GetDailyStats(ctx, q.ShortCode, from, to)
	} else {
		stats, err = a.stats.GetDailyStatsByOwner(ctx, q.OwnerID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("load daily stats: %w", err)
	}

	return fillSeries(stats, from, rangeDays), nil
}

// ByDimension returns click counts grouped by device class or location,
// sorted by count descending and capped at TopNLimit.
func (a *Aggregator) ByDimension(ctx context.Context, q Query, dim Dimension, rangeDays int) ([]model.DimensionCount, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if rangeDays < 1 || rangeDays > maxRangeDays {
		return nil, ErrInvalidRange
	}

	column, err := dimensionColumn(dim)
	if err != nil {
		return nil, err
	}

	to := a.today()
	from := to.AddDate(0, 0, -(rangeDays - 1))

	if q.ShortCode != "" {
		return a.stats.GetDimensionCounts(ctx, q.ShortCode, column, from, to, TopNLimit)
	}
	return a.stats.GetDimensionCountsByOwner(ctx, q.OwnerID, column, from, to, TopNLimit)
}

// SystemTotals returns the service-wide summary for admin reporting.
func (a *Aggregator) SystemTotals(ctx context.Context) (*model.SystemTotals, error) {
	totalClicks, err := a.stats.TotalClicks(ctx)
	if err != nil {
		return nil, fmt.Errorf("total clicks: %w", err)
	}

	activeLinks, err := a.links.CountActiveLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active links: %w", err)
	}

	topLocations, err := a.stats.GetSystemDimensionCounts(ctx, "country_breakdown", TopNLimit)
	if err != nil {
		return nil, fmt.Errorf("top locations: %w", err)
	}

	devices, err := a.stats.GetSystemDimensionCounts(ctx, "device_breakdown", TopNLimit)
	if err != nil {
		return nil, fmt.Errorf("device distribution: %w", err)
	}

	return &model.SystemTotals{
		TotalClicks:        totalClicks,
		ActiveLinkCount:    activeLinks,
		TopLocations:       topLocations,
		DeviceDistribution: devices,
		GeneratedAt:        a.now().UTC(),
	}, nil
}

func (a *Aggregator) today() time.Time {
	return a.now().UTC().Truncate(24 * time.Hour)
}

func dimensionColumn(dim Dimension) (string, error) {
	switch dim {
	case DimensionDevice:
		return "device_breakdown", nil
	case DimensionLocation:
		return "country_breakdown", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
}

// fillSeries expands sparse rollup rows into a dense series of exactly
// rangeDays entries starting at from.
func fillSeries(stats []*model.DailyLinkStats, from time.Time, rangeDays int) []model.DailyCount {
	byDate := make(map[string]int64, len(stats))
	for _, stat := range stats {
		byDate[stat.Date.UTC().Format("2006-01-02")] += stat.TotalClicks
	}

	series := make([]model.DailyCount, rangeDays)
	for i := 0; i < rangeDays; i++ {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		series[i] = model.DailyCount{
			Date:   date,
			Clicks: byDate[date],
		}
	}

	return series
}
