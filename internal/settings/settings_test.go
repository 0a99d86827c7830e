package settings

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "clink_settings"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.Get("history.dupe_mode", "add"); got != "add" {
		t.Errorf("Get on unset key = %q, want default %q", got, "add")
	}
	if got := s.GetBool("match.case_fold", true); got != true {
		t.Errorf("GetBool on unset key = %v, want default true", got)
	}
	if got := s.GetInt("history.max_lines", 123); got != 123 {
		t.Errorf("GetInt on unset key = %d, want default 123", got)
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "clink_settings"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Set("history.max_lines", "1000"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetInt("history.max_lines", 0); got != 1000 {
		t.Errorf("GetInt after Set = %d, want 1000", got)
	}
}

func TestReopenSeesPersistedValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clink_settings")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set("match.case_fold", "false"); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if got := s2.GetBool("match.case_fold", true); got != false {
		t.Errorf("GetBool after reopen = %v, want false", got)
	}
}

func TestOnChangeFiresOnExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clink_settings")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fired := make(chan struct{}, 1)
	s.OnChange(func(name string) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	if err := writeAll(path, map[string]string{"history.max_lines": "42"}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange callback did not fire after external write")
	}

	if got := s.GetInt("history.max_lines", 0); got != 42 {
		t.Errorf("GetInt after external write = %d, want 42", got)
	}
}
