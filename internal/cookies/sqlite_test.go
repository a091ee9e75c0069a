package cookies

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cookies.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jar := []types.Cookie{
		{Name: "cf_clearance", Value: "tok", Domain: ".example.com", Path: "/", Expires: 1893456000, Secure: true, HTTPOnly: true},
		{Name: "session", Value: "abc", Domain: "example.com", Path: "/"},
	}

	if err := s.SetCookies(ctx, "example.com", jar); err != nil {
		t.Fatalf("SetCookies: %v", err)
	}

	got, err := s.GetCookies(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetCookies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d cookies, want 2", len(got))
	}
	if got[0].Name != "cf_clearance" || !got[0].Secure || !got[0].HTTPOnly {
		t.Errorf("first cookie mangled: %+v", got[0])
	}
	if got[0].Expires != 1893456000 {
		t.Errorf("expiry not preserved: %v", got[0].Expires)
	}
}

func TestSQLiteMissingSite(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetCookies(context.Background(), "unknown.com")
	if !errors.Is(err, types.ErrCookiesNotFound) {
		t.Errorf("err = %v, want ErrCookiesNotFound", err)
	}
}

func TestSQLiteOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetCookies(ctx, "example.com", []types.Cookie{{Name: "old", Value: "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCookies(ctx, "example.com", []types.Cookie{{Name: "new", Value: "2"}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCookies(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "new" {
		t.Errorf("jar not replaced: %+v", got)
	}
}

func TestSQLiteSitesAreIsolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetCookies(ctx, "a.com", []types.Cookie{{Name: "a", Value: "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCookies(ctx, "b.com", []types.Cookie{{Name: "b", Value: "2"}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCookies(ctx, "a.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Errorf("site a jar polluted: %+v", got)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetCookies(ctx, "example.com", []types.Cookie{{Name: "x", Value: "y"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.GetCookies(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetCookies after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Name != "x" {
		t.Errorf("jar lost across reopen: %+v", got)
	}
}
