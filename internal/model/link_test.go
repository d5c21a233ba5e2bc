package model

import (
	"testing"
	"time"
)

func TestLinkStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		link Link
		want LinkStatus
	}{
		{
			name: "enabled without expiry",
			link: Link{Enabled: true},
			want: LinkStatusActive,
		},
		{
			name: "enabled with future expiry",
			link: Link{Enabled: true, ExpiresAt: &future},
			want: LinkStatusActive,
		},
		{
			name: "enabled with past expiry",
			link: Link{Enabled: true, ExpiresAt: &past},
			want: LinkStatusExpired,
		},
		{
			name: "disabled",
			link: Link{Enabled: false},
			want: LinkStatusInactive,
		},
		{
			name: "disabled and expired reports expired",
			link: Link{Enabled: false, ExpiresAt: &past},
			want: LinkStatusExpired,
		},
		{
			name: "deleted wins over everything",
			link: Link{Enabled: true, DeletedAt: &past},
			want: LinkStatusDeleted,
		},
		{
			name: "expiry exactly now is expired",
			link: Link{Enabled: true, ExpiresAt: &now},
			want: LinkStatusExpired,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.link.Status(now); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCachedLinkRoundTrip(t *testing.T) {
	t.Parallel()

	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	link := &Link{
		ShortCode:   "abc123",
		Destination: "https://example.com/page",
		Enabled:     true,
		ExpiresAt:   &expires,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	restored := link.ToCachedLink().ToLink("abc123")

	if restored.Destination != link.Destination {
		t.Errorf("Destination = %q, want %q", restored.Destination, link.Destination)
	}
	if !restored.Enabled {
		t.Error("Enabled lost in round trip")
	}
	if restored.ExpiresAt == nil || !restored.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", restored.ExpiresAt, expires)
	}
	if restored.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", restored.DeletedAt)
	}
}

func TestCachedLinkDisabled(t *testing.T) {
	t.Parallel()

	link := &Link{ShortCode: "x", Destination: "https://example.com", Enabled: false, UpdatedAt: time.Now()}
	if restored := link.ToCachedLink().ToLink("x"); restored.Enabled {
		t.Error("disabled flag lost in round trip")
	}
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"empty strings dropped", []string{"", "  "}, nil},
		{"lowercased and trimmed", []string{" Marketing ", "DOCS"}, []string{"marketing", "docs"}},
		{"duplicates collapsed", []string{"a", "A", "a "}, []string{"a"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeTags(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tag[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
