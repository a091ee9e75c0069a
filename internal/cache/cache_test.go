package cache

import (
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration, ignored []string) *Cache {
	t.Helper()
	c := New(NewTimeConfig(ttl), ignored)
	t.Cleanup(c.Close)
	return c
}

func TestLookupMissAndHit(t *testing.T) {
	c := newTestCache(t, 5*time.Second, nil)

	if _, ok := c.Lookup("https://example.com/a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Store("https://example.com/a", "<html>a</html>", c.EffectiveTTL())

	got, ok := c.Lookup("https://example.com/a")
	if !ok {
		t.Fatal("expected hit after store")
	}
	if got != "<html>a</html>" {
		t.Errorf("got %q, want stored content", got)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t, 5*time.Second, nil)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Store("https://example.com/a", "stale", 100*time.Millisecond)

	// Advance past expiry without waiting for the sweep.
	c.now = func() time.Time { return base.Add(200 * time.Millisecond) }

	if _, ok := c.Lookup("https://example.com/a"); ok {
		t.Fatal("expired entry must be treated as absent before the sweep runs")
	}
	if c.Len() != 1 {
		t.Errorf("entry should still be physically present, Len = %d", c.Len())
	}
}

func TestIgnoredURLNeverWritten(t *testing.T) {
	ignored := "https://example.com/live"
	c := newTestCache(t, 5*time.Second, []string{ignored})

	c.Store(ignored, "fresh", c.EffectiveTTL())
	if _, ok := c.Lookup(ignored); ok {
		t.Fatal("ignored URL must not be cached")
	}

	c.Store("https://example.com/other", "ok", c.EffectiveTTL())
	if _, ok := c.Lookup("https://example.com/other"); !ok {
		t.Fatal("non-ignored URL should cache normally")
	}
}

func TestIgnoredURLReadPathUnaffected(t *testing.T) {
	url := "https://example.com/soon-ignored"
	c := newTestCache(t, 5*time.Second, nil)

	c.Store(url, "cached before exemption", c.EffectiveTTL())
	c.SetIgnoredURLs([]string{url})

	// Existing entries keep serving; only new writes are skipped.
	if _, ok := c.Lookup(url); !ok {
		t.Fatal("pre-existing entry should still be readable after exemption")
	}
	c.Store(url, "should not overwrite", c.EffectiveTTL())
	got, _ := c.Lookup(url)
	if got != "cached before exemption" {
		t.Errorf("exempt write overwrote entry: %q", got)
	}
}

func TestEffectiveTTLResolution(t *testing.T) {
	tc := NewTimeConfig(5 * time.Second)
	c := New(tc, nil)
	defer c.Close()

	if got := c.EffectiveTTL(); got != 5*time.Second {
		t.Errorf("EffectiveTTL = %v, want shared default 5s", got)
	}

	// Shared default changes flow through to instances without an override.
	tc.SetDefault(30 * time.Second)
	if got := c.EffectiveTTL(); got != 30*time.Second {
		t.Errorf("EffectiveTTL = %v, want updated shared default 30s", got)
	}

	// An instance override shadows the shared default.
	c.SetInstanceTTL(2 * time.Second)
	if got := c.EffectiveTTL(); got != 2*time.Second {
		t.Errorf("EffectiveTTL = %v, want instance override 2s", got)
	}
	tc.SetDefault(1 * time.Minute)
	if got := c.EffectiveTTL(); got != 2*time.Second {
		t.Errorf("EffectiveTTL = %v, instance override must win over shared default", got)
	}
}

func TestSharedDefaultAffectsAllInstances(t *testing.T) {
	tc := NewTimeConfig(5 * time.Second)
	a := New(tc, nil)
	defer a.Close()
	b := New(tc, nil)
	defer b.Close()

	tc.SetDefault(10 * time.Second)

	if got := a.EffectiveTTL(); got != 10*time.Second {
		t.Errorf("instance a EffectiveTTL = %v, want 10s", got)
	}
	if got := b.EffectiveTTL(); got != 10*time.Second {
		t.Errorf("instance b EffectiveTTL = %v, want 10s", got)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 5*time.Second, nil)

	c.Store("https://example.com/a", "a", c.EffectiveTTL())
	c.Store("https://example.com/b", "b", c.EffectiveTTL())
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", c.Len())
	}
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	c := newTestCache(t, 5*time.Second, nil)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Store("https://example.com/old", "old", 1*time.Second)
	c.Store("https://example.com/new", "new", 1*time.Hour)

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	c.sweep()

	if _, ok := c.entries["https://example.com/old"]; ok {
		t.Error("expired entry survived the sweep")
	}
	if _, ok := c.entries["https://example.com/new"]; !ok {
		t.Error("live entry was evicted by the sweep")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(NewTimeConfig(time.Second), nil)
	c.Close()
	c.Close()
}
