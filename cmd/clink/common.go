package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clinkgo/clink/internal/inject"
)

// resolveProfile returns the --profile flag value, or asks the loader
// protocol for the platform default (the same directory the injected
// module reads its clink_settings/clink_diag.db/history banks from).
func resolveProfile(cmd *cobra.Command) (string, error) {
	profile, _ := cmd.Flags().GetString("profile")
	if profile == "" {
		profile = `~\clink`
	}
	return inject.GetProfilePath(profile)
}

func settingsPath(profile string) string { return filepath.Join(profile, "clink_settings") }
func diagPath(profile string) string     { return filepath.Join(profile, "clink_diag.db") }

// osExecutableDir returns the directory the running loader binary lives
// in, used to find the module DLL shipped alongside it.
func osExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
