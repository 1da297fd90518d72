package bypass

import (
	"net/http"
	"testing"
)

func resp(code int, header map[string]string, body string) Response {
	h := http.Header{}
	for k, v := range header {
		h.Set(k, v)
	}
	return Response{StatusCode: code, Header: h, Body: []byte(body)}
}

func TestDetectCloudflare(t *testing.T) {
	// Not blocked
	if detected, _ := detectCloudflare(resp(200, map[string]string{"Server": "nginx"}, "OK")); detected {
		t.Errorf("expected not detected")
	}

	// Mitigated by CF
	res := resp(403, map[string]string{"Server": "cloudflare", "Cf-Mitigated": "challenge"}, "")
	if detected, src := detectCloudflare(res); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	// CF Body signature
	res = resp(503, nil, "<html>... cf-turnstile ...</html>")
	if detected, src := detectCloudflare(res); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}

	// An API 403 proxied through CF is not a challenge
	res = resp(403, map[string]string{"Server": "cloudflare", "Content-Type": "application/json"}, `{"detail":"Invalid access key"}`)
	if detected, _ := detectCloudflare(res); detected {
		t.Errorf("expected plain API error not to be detected")
	}
}

func TestDetectAkamai(t *testing.T) {
	res := resp(403, map[string]string{"Server": "AkamaiGHost"}, "")
	if detected, src := detectAkamai(res); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by header")
	}

	res = resp(403, nil, "Access Denied... Reference #123.456")
	if detected, src := detectAkamai(res); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	res := resp(403, map[string]string{"X-DataDome": "protected"}, "")
	if detected, src := detectDataDome(res); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by header")
	}

	res = resp(403, nil, `<script src="https://geo.captcha-delivery.com/captcha/"></script>`)
	if detected, src := detectDataDome(res); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by body")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	res := resp(403, nil, `<div id="px-captcha"></div>`)
	if detected, src := detectPerimeterX(res); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by body")
	}
}

func TestDetect(t *testing.T) {
	if detected, _ := Detect(resp(404, nil, `{"detail":"not found"}`), DefaultDetectors()); detected {
		t.Errorf("expected no detection for a plain 404")
	}
	if detected, src := Detect(resp(403, map[string]string{"X-Px-Captcha": "1"}, ""), DefaultDetectors()); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX, got %q", src)
	}
}

func TestPageTitle(t *testing.T) {
	body := []byte("<!DOCTYPE html><html><head><title>\n  502 Bad\n Gateway </title></head><body>nginx</body></html>")
	if got := PageTitle(body); got != "502 Bad Gateway" {
		t.Errorf("expected collapsed title, got %q", got)
	}
	if got := PageTitle([]byte(`{"title":"<title>x</title>"}`)); got != "" {
		t.Errorf("expected no title for a JSON body, got %q", got)
	}
}
