// Package model defines domain entities for the service.
package model

import (
	"strconv"
	"strings"
	"time"
)

// LinkStatus represents the computed status of a link.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusExpired  LinkStatus = "expired"
	LinkStatusInactive LinkStatus = "inactive"
	LinkStatusDeleted  LinkStatus = "deleted"
)

// Link represents a short code mapped to a destination URL.
//
// ShortCode is immutable once created and uniquely identifies the link.
// ClickCount is a denormalized counter maintained by the click recorder;
// it may lag the click_events table and is never authoritative.
type Link struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	Destination string     `json:"destination"`
	OwnerID     string     `json:"owner_id"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DeletedAt   *time.Time `json:"-"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Status computes the current status of the link at time now.
// Expiry takes precedence over the enabled flag: a disabled link past
// its expiry reports expired.
func (l *Link) Status(now time.Time) LinkStatus {
	if l.DeletedAt != nil {
		return LinkStatusDeleted
	}
	if l.IsExpired(now) {
		return LinkStatusExpired
	}
	if !l.Enabled {
		return LinkStatusInactive
	}
	return LinkStatusActive
}

// IsExpired reports whether the link has passed its expiry.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// IsResolvable reports whether the link can serve a redirect at time now.
func (l *Link) IsResolvable(now time.Time) bool {
	return l.Status(now) == LinkStatusActive
}

// CachedLink is the Redis hash representation of a link.
// All fields are strings for hash-field compatibility.
type CachedLink struct {
	Destination string `redis:"destination"`
	Enabled     string `redis:"enabled"`    // "1" or "0"
	ExpiresAt   string `redis:"expires_at"` // Unix seconds or empty
	DeletedAt   string `redis:"deleted_at"` // Unix seconds or empty
	UpdatedAt   string `redis:"updated_at"` // Unix seconds
}

// ToLink converts the cached representation back to a Link.
func (c *CachedLink) ToLink(shortCode string) *Link {
	link := &Link{
		ShortCode:   shortCode,
		Destination: c.Destination,
		Enabled:     c.Enabled == "1",
	}

	if ts := parseUnix(c.ExpiresAt); ts != nil {
		link.ExpiresAt = ts
	}
	if ts := parseUnix(c.DeletedAt); ts != nil {
		link.DeletedAt = ts
	}
	if ts := parseUnix(c.UpdatedAt); ts != nil {
		link.UpdatedAt = *ts
	}

	return link
}

// ToCachedLink converts a Link to its Redis hash representation.
func (l *Link) ToCachedLink() *CachedLink {
	cached := &CachedLink{
		Destination: l.Destination,
		Enabled:     boolToString(l.Enabled),
		UpdatedAt:   strconv.FormatInt(l.UpdatedAt.Unix(), 10),
	}

	if l.ExpiresAt != nil {
		cached.ExpiresAt = strconv.FormatInt(l.ExpiresAt.Unix(), 10)
	}
	if l.DeletedAt != nil {
		cached.DeletedAt = strconv.FormatInt(l.DeletedAt.Unix(), 10)
	}

	return cached
}

// NormalizeTags trims, lowercases, and de-duplicates a tag list.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseUnix(s string) *time.Time {
	if s == "" {
		return nil
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}

func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
