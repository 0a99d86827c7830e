package main

import (
	"testing"
)

func TestDefaultForKnownSetting(t *testing.T) {
	got := defaultFor("history.max_lines")
	if got != "50000" {
		t.Errorf("defaultFor(history.max_lines) = %q, want 50000", got)
	}
}

func TestDefaultForUnknownSetting(t *testing.T) {
	if got := defaultFor("not.a.real.setting"); got != "" {
		t.Errorf("defaultFor(unknown) = %q, want empty", got)
	}
}

func TestSetCommandRoundTrip(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()

	root.SetArgs([]string{"--profile", dir, "set", "match.case_fold", "false"})
	if err := root.Execute(); err != nil {
		t.Fatalf("set: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--profile", dir, "set", "match.case_fold"})
	if err := root.Execute(); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestSetCommandListsWithNoArgs(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "set"})
	if err := root.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}
}
