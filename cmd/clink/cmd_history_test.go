package main

import "testing"

func TestHistoryAddListCompact(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "add", "echo hello"})
	if err := root.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "list"})
	if err := root.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "compact"})
	if err := root.Execute(); err != nil {
		t.Fatalf("compact: %v", err)
	}
}

func TestHistoryDeleteRejectsBadID(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "delete", "not-a-number"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestHistoryExpand(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "add", "git status"})
	if err := root.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "expand", "!!"})
	if err := root.Execute(); err != nil {
		t.Fatalf("expand: %v", err)
	}
}

func TestHistoryClear(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "add", "echo hello"})
	if err := root.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--profile", dir, "history", "clear"})
	if err := root.Execute(); err != nil {
		t.Fatalf("clear: %v", err)
	}
}
