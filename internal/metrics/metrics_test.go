package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8888, nil)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordRequest("profile", "ok", 250*time.Millisecond)
	RecordRequest("profile", "server_error", time.Second)
	RecordRetry("profile")
	RecordAccount(AccountDegraded)
	RecordError("reel_fetch")
	ReelsExportedTotal.Add(3)

	resp, err := http.Get("http://localhost:8888/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	output := string(body)

	want := []string{
		`reelrank_api_requests_total{operation="profile",outcome="ok"} 1`,
		`reelrank_api_requests_total{operation="profile",outcome="server_error"} 1`,
		`reelrank_api_request_duration_seconds_bucket`,
		`reelrank_api_retries_total{operation="profile"} 1`,
		`reelrank_accounts_total{status="degraded"} 1`,
		`reelrank_error_records_total{context="reel_fetch"} 1`,
		`reelrank_reels_exported_total 3`,
	}
	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Errorf("expected %q in metrics output", w)
		}
	}
}

func TestStopNilServer(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
