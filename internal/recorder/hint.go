// Package recorder accounts for successful resolutions off the redirect
// critical path: a fire-and-forget publisher feeds a Redis stream, and a
// worker drains it into durable click events, counter increments, and
// daily rollups.
package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/relink/relink/internal/model"
)

// ClientHint is the coarse, privacy-conscious metadata captured per
// click. No raw IP or full User-Agent leaves this package.
type ClientHint struct {
	DeviceClass model.DeviceClass
	CountryCode string
	VisitorHash string
}

// HintFromRequest derives a ClientHint from request headers.
func HintFromRequest(r *http.Request, occurredAt time.Time) ClientHint {
	ua := r.Header.Get("User-Agent")
	return ClientHint{
		DeviceClass: ClassifyDevice(ua),
		CountryCode: ExtractCountryCode(r.Header.Get("CF-IPCountry")),
		VisitorHash: VisitorHash(clientIP(r), ua, occurredAt),
	}
}

// ClassifyDevice buckets a User-Agent into a coarse device class.
// Substring checks only; anything finer-grained would retain more
// client detail than the aggregation needs.
func ClassifyDevice(userAgent string) model.DeviceClass {
	if userAgent == "" {
		return model.DeviceOther
	}

	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "bot"),
		strings.Contains(ua, "crawler"),
		strings.Contains(ua, "spider"),
		strings.Contains(ua, "curl/"),
		strings.Contains(ua, "wget/"):
		return model.DeviceBot
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"):
		return model.DeviceTablet
	case strings.Contains(ua, "mobile"),
		strings.Contains(ua, "iphone"),
		strings.Contains(ua, "android"):
		return model.DeviceMobile
	case strings.Contains(ua, "windows"),
		strings.Contains(ua, "macintosh"),
		strings.Contains(ua, "x11"),
		strings.Contains(ua, "linux"):
		return model.DeviceDesktop
	default:
		return model.DeviceOther
	}
}

// VisitorHash creates a privacy-safe visitor identifier.
// Uses SHA256(IP + UserAgent + daily salt) truncated to 16 hex chars;
// the salt rotates at midnight UTC so visitors cannot be tracked across
// days.
func VisitorHash(ip, userAgent string, occurredAt time.Time) string {
	dailySalt := fmt.Sprintf("relink:%s", occurredAt.UTC().Format("2006-01-02"))

	hash := sha256.Sum256([]byte(ip + userAgent + dailySalt))
	return hex.EncodeToString(hash[:])[:16]
}

// ExtractCountryCode extracts a country code from the edge geo header.
// Returns empty string if the header is missing or invalid.
func ExtractCountryCode(header string) string {
	if len(header) != 2 {
		return ""
	}
	code := strings.ToUpper(header)
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return ""
		}
	}
	return code
}

// clientIP extracts the client IP address from the request.
// The IP is only ever hashed, never stored.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// Take the first IP in the chain
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			return ip[:idx]
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
