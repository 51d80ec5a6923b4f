package resolver

import (
	"bytes"
	"net/http"
	"strings"
)

// Title prefixes of interstitials served instead of the requested page
var challengeTitles = []string{
	"just a moment",
	"attention required",
	"access denied",
	"please wait",
	"verifying you are human",
	"security check",
	"ddos-guard",
	"checking your browser",
}

// Body markers only present on challenge pages
var challengeMarkers = [][]byte{
	[]byte("cf_chl_opt"),
	[]byte("cf-browser-verification"),
	[]byte("px-captcha"),
	[]byte("captcha-delivery.com"),
}

// challengeReason reports why a 2xx response looks like an anti-bot interstitial, or "" when it does not
func challengeReason(header http.Header, title string, body []byte) string {
	if strings.EqualFold(header.Get("cf-mitigated"), "challenge") {
		return "cf-mitigated header"
	}
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, prefix := range challengeTitles {
		if strings.HasPrefix(lower, prefix) {
			return "interstitial title"
		}
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return "captcha marker"
		}
	}
	return ""
}
