// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/relink/relink/internal/model"
)

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	Destination string     `json:"destination"`
	ShortCode   string     `json:"short_code,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// UpdateLinkRequest represents the request body for updating a link.
// Absent fields are left unchanged.
type UpdateLinkRequest struct {
	Destination *string    `json:"destination,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	Destination string     `json:"destination"`
	OwnerID     string     `json:"owner_id"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Status      string     `json:"status"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LinkListResponse represents a paginated list of links.
type LinkListResponse struct {
	Data       []LinkResponse `json:"data"`
	Pagination *Pagination    `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TimeSeriesResponse is a daily click series for a link or owner.
type TimeSeriesResponse struct {
	RangeDays int                `json:"range_days"`
	Series    []model.DailyCount `json:"series"`
}

// BreakdownResponse is a dimensional click breakdown.
type BreakdownResponse struct {
	Dimension string                 `json:"dimension"`
	RangeDays int                    `json:"range_days"`
	Entries   []model.DimensionCount `json:"entries"`
}

// ToLinkResponse converts a Link model to a LinkResponse DTO. The
// click_count field is the denormalized counter and may briefly trail
// the rollup figures.
func ToLinkResponse(link *model.Link, baseURL string) *LinkResponse {
	return &LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    baseURL + "/r/" + link.ShortCode,
		Destination: link.Destination,
		OwnerID:     link.OwnerID,
		Enabled:     link.Enabled,
		ExpiresAt:   link.ExpiresAt,
		Tags:        link.Tags,
		Status:      string(link.Status(time.Now())),
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}
}

// ToLinkListResponse converts a page of links to a LinkListResponse.
func ToLinkListResponse(links []*model.Link, baseURL, nextCursor string, hasMore bool) *LinkListResponse {
	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = *ToLinkResponse(link, baseURL)
	}
	return &LinkListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}
