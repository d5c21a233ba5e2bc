// Package model defines domain entities for the service.
package model

import "time"

// DeviceClass is a coarse device category derived from the User-Agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceBot     DeviceClass = "bot"
	DeviceOther   DeviceClass = "other"
)

// IsValid reports whether the device class is one of the known values.
func (d DeviceClass) IsValid() bool {
	switch d {
	case DeviceDesktop, DeviceMobile, DeviceTablet, DeviceBot, DeviceOther:
		return true
	}
	return false
}

// ClickEvent is an immutable record of one successful resolution.
// Events are append-only and are the authoritative source for analytics;
// Link.ClickCount is a denormalized cache of their count.
type ClickEvent struct {
	ID      string `json:"id"`       // ULID, time-sortable
	EventID string `json:"event_id"` // Stream message ID, idempotency key

	ShortCode string `json:"short_code"`

	// Coarse, privacy-conscious client metadata. No raw IP or full UA
	// is persisted.
	DeviceClass DeviceClass `json:"device_class"`
	CountryCode string      `json:"country_code,omitempty"` // ISO 3166-1 alpha-2
	VisitorHash string      `json:"visitor_hash"`           // SHA256(ip+ua+daily salt)[:16]

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DailyLinkStats is a pre-bucketed daily rollup for one short code.
// Large-range analytics queries are served from these rows rather than
// scanning raw click events.
type DailyLinkStats struct {
	ShortCode string    `json:"short_code"`
	Date      time.Time `json:"date"` // UTC midnight

	TotalClicks    int64 `json:"total_clicks"`
	UniqueVisitors int64 `json:"unique_visitors"`

	DeviceBreakdown  map[string]int64 `json:"device_breakdown,omitempty"`
	CountryBreakdown map[string]int64 `json:"country_breakdown,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyCount is one entry in a zero-gap time series.
type DailyCount struct {
	Date   string `json:"date"` // ISO date
	Clicks int64  `json:"clicks"`
}

// DimensionCount is one entry in a dimensional breakdown, e.g. one
// device class or one country with its click count.
type DimensionCount struct {
	Value  string `json:"value"`
	Clicks int64  `json:"clicks"`
}

// SystemTotals is the service-wide analytics summary.
type SystemTotals struct {
	TotalClicks        int64            `json:"total_clicks"`
	ActiveLinkCount    int64            `json:"active_link_count"`
	TopLocations       []DimensionCount `json:"top_locations"`
	DeviceDistribution []DimensionCount `json:"device_distribution"`
	GeneratedAt        time.Time        `json:"generated_at"`
}
