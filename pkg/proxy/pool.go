package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy that is not in the pool.
var ErrUnknownProxy = errors.New("proxy: not found in pool")

type entry struct {
	url           *url.URL
	failures      int
	successes     int
	disabledUntil time.Time
}

func (e *entry) disabled(now time.Time) bool {
	return now.Before(e.disabledUntil)
}

// Pool rotates API traffic across a set of egress proxies, benching any
// proxy that fails MaxFailures times in a row for Cooldown.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	cursor      int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a proxy remains disabled after hitting MaxFailures.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values fall back to 3 failures
// and a 5 minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile reads proxies from a file, one URL per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy file: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them to the pool. A missing scheme
// defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, parsed...)
	return nil
}

// Len reports how many proxies are in the pool, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next healthy proxy in round-robin order, or nil when the
// pool is empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.entries)

		if e.disabled(now) {
			continue
		}
		if !e.disabledUntil.IsZero() {
			// revived after cooldown
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
	})
}

// MarkFailure records a failed request through proxyURL, benching it once
// it reaches the failure threshold.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.disabledUntil = p.now().Add(p.cooldown)
		}
	})
}

func (p *Pool) mark(proxyURL *url.URL, fn func(*entry)) error {
	if proxyURL == nil {
		return errors.New("proxy: nil url")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := proxyURL.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			fn(e)
			return nil
		}
	}
	return ErrUnknownProxy
}
