package main

import "testing"

func TestInfoCommand(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"--profile", dir, "info", "--diag", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("info: %v", err)
	}
}
