package recorder

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relink/relink/internal/model"
)

func TestClassifyDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ua   string
		want model.DeviceClass
	}{
		{"empty", "", model.DeviceOther},
		{"windows desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", model.DeviceDesktop},
		{"mac desktop", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", model.DeviceDesktop},
		{"linux desktop", "Mozilla/5.0 (X11; Linux x86_64)", model.DeviceDesktop},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", model.DeviceMobile},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", model.DeviceMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", model.DeviceTablet},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", model.DeviceBot},
		{"curl", "curl/8.4.0", model.DeviceBot},
		{"unknown", "SomeCustomClient/1.0", model.DeviceOther},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyDevice(tt.ua); got != tt.want {
				t.Errorf("ClassifyDevice(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestVisitorHash_Deterministic(t *testing.T) {
	t.Parallel()

	ip := "203.0.113.7"
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	hash1 := VisitorHash(ip, ua, at)
	hash2 := VisitorHash(ip, ua, at)

	if hash1 != hash2 {
		t.Error("Same inputs should produce same hash")
	}
	if len(hash1) != 16 {
		t.Errorf("Hash length = %d, want 16", len(hash1))
	}
}

func TestVisitorHash_DailyRotation(t *testing.T) {
	t.Parallel()

	ip := "203.0.113.7"
	ua := "Mozilla/5.0"

	day1 := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	if VisitorHash(ip, ua, day1) == VisitorHash(ip, ua, day2) {
		t.Error("Different days should produce different hashes to prevent cross-day tracking")
	}

	morning := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)

	if VisitorHash(ip, ua, morning) != VisitorHash(ip, ua, evening) {
		t.Error("Same day should produce same hash regardless of time")
	}
}

func TestExtractCountryCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "US", "US"},
		{"lowercase normalized", "de", "DE"},
		{"missing", "", ""},
		{"too long", "USA", ""},
		{"non-letters", "1X", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractCountryCode(tt.header); got != tt.want {
				t.Errorf("ExtractCountryCode(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHintFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/r/abc123", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148")
	r.Header.Set("CF-IPCountry", "fr")
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	hint := HintFromRequest(r, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))

	if hint.DeviceClass != model.DeviceMobile {
		t.Errorf("DeviceClass = %v, want mobile", hint.DeviceClass)
	}
	if hint.CountryCode != "FR" {
		t.Errorf("CountryCode = %q, want FR", hint.CountryCode)
	}
	if len(hint.VisitorHash) != 16 {
		t.Errorf("VisitorHash length = %d, want 16", len(hint.VisitorHash))
	}
}

func TestClientIP_ForwardedChain(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1, 10.0.0.2")

	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("clientIP() = %q, want first IP in chain", got)
	}
}
