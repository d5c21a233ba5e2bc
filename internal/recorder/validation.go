package recorder

import (
	"fmt"

	"github.com/relink/relink/internal/model"
)

const (
	minShortCodeLength = 3
	maxShortCodeLength = 50
	visitorHashLength  = 16
)

// ValidatePayload validates click payload fields before persistence.
// Invalid payloads are dead-lettered rather than retried.
func ValidatePayload(payload ClickPayload) error {
	if payload.ShortCode == "" {
		return fmt.Errorf("short_code is required")
	}
	if len(payload.ShortCode) < minShortCodeLength || len(payload.ShortCode) > maxShortCodeLength {
		return fmt.Errorf("short_code length out of bounds")
	}
	if !model.DeviceClass(payload.DeviceClass).IsValid() {
		return fmt.Errorf("unknown device_class %q", payload.DeviceClass)
	}
	if payload.VisitorHash == "" {
		return fmt.Errorf("visitor_hash is required")
	}
	if len(payload.VisitorHash) != visitorHashLength || !isHex(payload.VisitorHash) {
		return fmt.Errorf("visitor_hash must be %d hex chars", visitorHashLength)
	}
	if payload.CountryCode != "" && len(payload.CountryCode) != 2 {
		return fmt.Errorf("country_code must be 2 chars")
	}
	if payload.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
