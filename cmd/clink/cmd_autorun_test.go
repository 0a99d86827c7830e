package main

import "testing"

func TestAutorunCommandLine(t *testing.T) {
	got := autorunCommandLine(`C:\clink\clink.exe`, `C:\Users\me\.clink`)
	want := `"C:\clink\clink.exe" inject --quiet --profile "C:\Users\me\.clink"`
	if got != want {
		t.Errorf("autorunCommandLine = %q, want %q", got, want)
	}
}

func TestAutorunCommandLineWithoutProfile(t *testing.T) {
	got := autorunCommandLine(`C:\clink\clink.exe`, "")
	want := `"C:\clink\clink.exe" inject --quiet`
	if got != want {
		t.Errorf("autorunCommandLine = %q, want %q", got, want)
	}
}

func TestNewAutorunCmdHasSubcommands(t *testing.T) {
	cmd := newAutorunCmd()
	names := []string{"install", "uninstall", "show"}
	for _, name := range names {
		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("expected autorun subcommand %q", name)
		}
	}
}
