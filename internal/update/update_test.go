package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewer(t *testing.T) {
	cases := []struct {
		candidate, base string
		want            bool
	}{
		{"v1.8.2", "1.8.1", true},
		{"1.8.1", "1.8.1", false},
		{"1.7.9", "1.8.0", false},
		{"2.0.0", "1.9.9", true},
	}
	for _, c := range cases {
		got, err := IsNewer(c.candidate, c.base)
		if err != nil {
			t.Fatalf("IsNewer(%q, %q): %v", c.candidate, c.base, err)
		}
		if got != c.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", c.candidate, c.base, got, c.want)
		}
	}
}

func TestIsNewerRejectsMalformedVersion(t *testing.T) {
	if _, err := IsNewer("not-a-version", "1.0.0"); err == nil {
		t.Fatal("expected an error for a malformed version string")
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"tag_name": "v1.9.0",
			"html_url": "https://example.invalid/releases/v1.9.0",
		})
	}))
	defer srv.Close()

	c := NewCheckerWithURL(srv.URL)
	rel, err := c.Check(context.Background(), "1.8.0")
	if err != nil {
		t.Fatal(err)
	}
	if rel.Current {
		t.Error("Current = true, want false (a newer release is available)")
	}
	if rel.Tag != "v1.9.0" {
		t.Errorf("Tag = %q, want v1.9.0", rel.Tag)
	}
}

func TestCheckReportsUpToDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"tag_name": "v1.8.0"})
	}))
	defer srv.Close()

	c := NewCheckerWithURL(srv.URL)
	rel, err := c.Check(context.Background(), "1.8.0")
	if err != nil {
		t.Fatal(err)
	}
	if !rel.Current {
		t.Error("Current = false, want true (same version)")
	}
}

func TestCheckPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCheckerWithURL(srv.URL)
	if _, err := c.Check(context.Background(), "1.8.0"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
