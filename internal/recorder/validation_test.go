package recorder

import (
	"strings"
	"testing"
)

func validPayload() ClickPayload {
	return ClickPayload{
		ShortCode:   "abc123",
		DeviceClass: "mobile",
		CountryCode: "US",
		VisitorHash: "a1b2c3d4e5f60718",
		OccurredAt:  1767225600000,
	}
}

func TestValidatePayload_Valid(t *testing.T) {
	t.Parallel()

	if err := ValidatePayload(validPayload()); err != nil {
		t.Errorf("ValidatePayload() error = %v, want nil", err)
	}

	p := validPayload()
	p.CountryCode = ""
	if err := ValidatePayload(p); err != nil {
		t.Errorf("ValidatePayload() with empty country error = %v, want nil", err)
	}
}

func TestValidatePayload_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ClickPayload)
	}{
		{"missing short code", func(p *ClickPayload) { p.ShortCode = "" }},
		{"short code too short", func(p *ClickPayload) { p.ShortCode = "ab" }},
		{"short code too long", func(p *ClickPayload) { p.ShortCode = strings.Repeat("a", 51) }},
		{"unknown device class", func(p *ClickPayload) { p.DeviceClass = "smartwatch" }},
		{"missing visitor hash", func(p *ClickPayload) { p.VisitorHash = "" }},
		{"visitor hash wrong length", func(p *ClickPayload) { p.VisitorHash = "abc" }},
		{"visitor hash not hex", func(p *ClickPayload) { p.VisitorHash = "zzzzzzzzzzzzzzzz" }},
		{"bad country length", func(p *ClickPayload) { p.CountryCode = "USA" }},
		{"missing timestamp", func(p *ClickPayload) { p.OccurredAt = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPayload()
			tt.mutate(&p)
			if err := ValidatePayload(p); err == nil {
				t.Error("ValidatePayload() = nil, want error")
			}
		})
	}
}
