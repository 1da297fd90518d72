// Package bypass recognizes bot-protection challenge pages served in place
// of an API response, typically by a CDN in front of the API or a proxy.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP response the detectors inspect.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether res is a challenge or block page, and by whom.
type Detector func(res Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs res through detectors and returns the first match.
func Detect(res Response, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

func server(res Response) string {
	return strings.ToLower(res.Header.Get("Server"))
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(server(res), "cloudflare") && res.Header.Get("Cf-Mitigated") != "" {
		return true, "Cloudflare"
	}
	if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(res.Body, []byte("cf-turnstile")) {
		return true, "Cloudflare"
	}
	switch PageTitle(res.Body) {
	case "Attention Required! | Cloudflare", "Just a moment...":
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	// the generic Akamai block page
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	if strings.Contains(server(res), "akamai") && !isJSON(res) {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if res.Header.Get("X-DataDome") != "" || res.Header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if res.Header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
		bytes.Contains(res.Body, []byte("px-captcha")) ||
		bytes.Contains(res.Body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}

func isJSON(res Response) bool {
	return strings.Contains(res.Header.Get("Content-Type"), "json")
}
