package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinkgo/clink/internal/diag"
	"github.com/clinkgo/clink/internal/settings"
	"github.com/clinkgo/clink/internal/update"
)

func newInfoCmd() *cobra.Command {
	var showDiag int
	var checkUpdate bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print profile paths, settings, and recent diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := resolveProfile(cmd)
			if err != nil {
				return fmt.Errorf("resolve profile: %w", err)
			}
			fmt.Printf("profile        %s\n", profile)
			fmt.Printf("settings file  %s\n", settingsPath(profile))
			fmt.Printf("diag database  %s\n", diagPath(profile))

			store, err := settings.Open(settingsPath(profile))
			if err != nil {
				return fmt.Errorf("open settings: %w", err)
			}
			defer store.Close()

			all := store.All()
			fmt.Printf("settings set   %d\n", len(all))

			if showDiag > 0 {
				log, err := diag.Open(diagPath(profile))
				if err != nil {
					return fmt.Errorf("open diag: %w", err)
				}
				defer log.Close()

				events, err := log.Recent(showDiag)
				if err != nil {
					return fmt.Errorf("read diag: %w", err)
				}
				fmt.Println()
				fmt.Println("recent events:")
				for _, e := range events {
					fmt.Printf("  %s  %-10s %-28s %s\n",
						e.CreatedAt.Format(time.RFC3339), e.Source, e.Name, e.Detail)
				}
			}

			if !cmd.Flags().Changed("check-update") {
				checkUpdate = store.GetBool("update.auto_check", false)
			}
			if checkUpdate {
				fmt.Println()
				if err := printUpdateStatus(cmd); err != nil {
					fmt.Printf("update check failed: %v\n", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&showDiag, "diag", 0, "also print the last N diagnostics events")
	cmd.Flags().BoolVar(&checkUpdate, "check-update", false, "check GitHub for a newer release")
	return cmd
}

func printUpdateStatus(cmd *cobra.Command) error {
	checker := update.NewChecker("clinkgo", "clink")
	release, err := checker.Check(cmd.Context(), version)
	if err != nil {
		return err
	}
	if release.Tag == "" {
		fmt.Println("no release information available")
		return nil
	}
	fmt.Printf("latest release %s (%s)\n", release.Tag, release.URL)
	if !release.Current {
		fmt.Printf("a newer release than %s is available\n", version)
	}
	return nil
}
