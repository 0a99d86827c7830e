package main

import (
	"bytes"
	"testing"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	names := []string{"inject", "history", "set", "autorun", "info", "version"}
	for _, name := range names {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}

	if root.PersistentFlags().Lookup("profile") == nil {
		t.Error("expected persistent --profile flag")
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
