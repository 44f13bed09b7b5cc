package utils

import "strings"

const defaultDesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var mobileUAMarkers = []string{"mobile", "iphone", "ipad", "android"}

// DefaultDesktopUserAgent is what the Steam login window presents when none is configured.
func DefaultDesktopUserAgent() string {
	return defaultDesktopUserAgent
}

// NormalizeDesktopUserAgent keeps ua unless it is empty or names a mobile
// device. Steam serves a different login flow to mobile agents.
func NormalizeDesktopUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	lower := strings.ToLower(ua)
	if ua == "" {
		return defaultDesktopUserAgent
	}
	for _, m := range mobileUAMarkers {
		if strings.Contains(lower, m) {
			return defaultDesktopUserAgent
		}
	}
	return ua
}
