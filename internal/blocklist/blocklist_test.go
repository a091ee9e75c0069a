package blocklist

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmbeddedRulesLoad(t *testing.T) {
	r := Embedded()
	if len(r.Substrings) == 0 {
		t.Fatal("embedded blocklist should not be empty")
	}
}

func TestMatch(t *testing.T) {
	r := Embedded()

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{
			name:    "ad player URL",
			url:     "https://players.radioonlinehd.com/ads/aquamangaradio?v=2",
			blocked: true,
		},
		{
			name:    "analytics beacon",
			url:     "https://events.newsroom.bi/collect",
			blocked: true,
		},
		{
			name:    "audio stream",
			url:     "https://stream.zeno.fm/abcdef",
			blocked: true,
		},
		{
			name:    "comment widget CDN",
			url:     "https://c.disquscdn.com/next/embed/lounge.bundle.js",
			blocked: true,
		},
		{
			name:    "substring anywhere in URL matches",
			url:     "https://example.com/?ref=radioonlinehd",
			blocked: true,
		},
		{
			name:    "target site passes",
			url:     "https://example.com/chapter/12",
			blocked: false,
		},
		{
			name:    "empty URL passes",
			url:     "",
			blocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Match(tt.url); got != tt.blocked {
				t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.blocked)
			}
		})
	}
}

func TestValidateRejectsEmptyPattern(t *testing.T) {
	r := &Rules{Substrings: []string{"ads.example.com", ""}}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for empty pattern")
	}
}

func TestManagerEmbeddedOnly(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if !m.Blocked("https://hosted.muses.org/player.js") {
		t.Error("embedded rule should block muses player")
	}
	if m.Blocked("https://example.com/") {
		t.Error("unlisted URL should not be blocked")
	}
}

func TestManagerExternalOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	if err := os.WriteFile(path, []byte("substrings:\n  - \"tracker.example.net\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if !m.Blocked("https://tracker.example.net/pixel.gif") {
		t.Error("external rule should apply")
	}
	// External file replaces the embedded set entirely.
	if m.Blocked("https://stream.zeno.fm/abc") {
		t.Error("embedded rule should not apply when external file is loaded")
	}
}

func TestManagerInvalidExternalFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	if err := os.WriteFile(path, []byte("substrings: {not: a list}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	// Invalid file keeps the embedded defaults in use.
	if !m.Blocked("https://stream.zeno.fm/abc") {
		t.Error("embedded rules should remain active after failed external load")
	}
}

func TestManagerHotReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping hot-reload test in short mode")
	}

	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	if err := os.WriteFile(path, []byte("substrings:\n  - \"first.example.com\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path, true)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if !m.Blocked("https://first.example.com/x") {
		t.Fatal("initial external rule should apply")
	}

	if err := os.WriteFile(path, []byte("substrings:\n  - \"second.example.com\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Blocked("https://second.example.com/x") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("hot-reload did not pick up the rewritten blocklist")
}

func TestManagerCloseIdempotent(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
