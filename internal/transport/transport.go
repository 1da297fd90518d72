// Package transport builds the http.RoundTripper shared by every API call:
// an optional uTLS client hello profile and optional proxy rotation.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/FranksOps/reelrank/pkg/proxy"
	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile validates a profile name. The empty string selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProfileGo, nil
	case ProfileGo, ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom:
		return p, nil
	}
	return "", fmt.Errorf("transport: unknown profile %q", p)
}

func helloFor(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("transport: unknown profile %q", p)
}

// Config selects how API connections are made.
type Config struct {
	Profile Profile
	// Proxies, if non-empty, rotates each request through the next healthy proxy.
	Proxies *proxy.Pool
	// RootCAs overrides the system roots; nil uses the host's pool.
	RootCAs *x509.CertPool
	Logger  *slog.Logger
}

type proxyKey struct{}

// New returns a RoundTripper for cfg.
func New(cfg Config) (http.RoundTripper, error) {
	if cfg.Profile == "" {
		cfg.Profile = ProfileGo
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy is chosen per request by the rotating wrapper and carried on
	// the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = proxyFunc
	if cfg.RootCAs != nil {
		base.TLSClientConfig = &tls.Config{RootCAs: cfg.RootCAs}
	}

	if cfg.Profile != ProfileGo {
		helloID, err := helloFor(cfg.Profile)
		if err != nil {
			return nil, err
		}
		base.DialTLSContext = dialUTLS(base, helloID, cfg.RootCAs)
	}

	if cfg.Proxies == nil || cfg.Proxies.Len() == 0 {
		return base, nil
	}
	if cfg.Profile != ProfileGo {
		// CONNECT tunnels are wrapped by net/http with crypto/tls, never DialTLSContext.
		cfg.Logger.Warn("tls profile is not applied to proxied requests", "profile", cfg.Profile, "proxies", cfg.Proxies.Len())
	}
	return &rotating{base: base, pool: cfg.Proxies, logger: cfg.Logger}, nil
}

// dialUTLS dials TCP with the transport's dialer and performs a uTLS
// handshake. ALPN is pinned to http/1.1 because net/http cannot speak h2
// over a connection it did not set up itself.
func dialUTLS(tr *http.Transport, helloID utls.ClientHelloID, roots *x509.CertPool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := tr.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newUClient(tcpConn, &utls.Config{ServerName: host, RootCAs: roots}, helloID)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("transport: utls handshake: %w", err)
		}
		if proto := uConn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
			_ = uConn.Close()
			return nil, fmt.Errorf("transport: server negotiated %q, only http/1.1 is supported", proto)
		}
		return uConn, nil
	}
}

func newUClient(conn net.Conn, cfg *utls.Config, helloID utls.ClientHelloID) (*utls.UConn, error) {
	// Randomized hellos have no fixed spec to rewrite.
	if helloID.Client == utls.HelloRandomizedNoALPN.Client {
		return utls.UClient(conn, cfg, helloID), nil
	}

	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.UClient(conn, cfg, helloID), nil
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("transport: apply %s preset: %w", helloID.Client, err)
	}
	return uConn, nil
}

// rotating sends each request through the pool's next healthy proxy and
// reports the outcome back to the pool.
type rotating struct {
	base   http.RoundTripper
	pool   *proxy.Pool
	logger *slog.Logger
}

func (r *rotating) RoundTrip(req *http.Request) (*http.Response, error) {
	u := r.pool.Next()
	if u == nil {
		r.logger.Warn("no healthy proxy available, sending direct", "host", req.URL.Host)
		return r.base.RoundTrip(req)
	}

	resp, err := r.base.RoundTrip(req.WithContext(context.WithValue(req.Context(), proxyKey{}, u)))
	if err != nil && req.Context().Err() != nil {
		// cancelled by the caller, not the proxy's fault
		return resp, err
	}
	if err != nil || resp.StatusCode == http.StatusProxyAuthRequired {
		_ = r.pool.MarkFailure(u)
		r.logger.Debug("proxy failure", "proxy", u.Redacted(), "err", err)
		return resp, err
	}
	_ = r.pool.MarkSuccess(u)
	return resp, nil
}
