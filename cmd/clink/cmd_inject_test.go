package main

import "testing"

func TestNewInjectCmdFlags(t *testing.T) {
	cmd := newInjectCmd()

	for _, name := range []string{"pid", "module", "no-host-check", "quiet"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag %q to exist", name)
		}
	}
}
