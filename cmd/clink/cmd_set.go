package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clinkgo/clink/internal/settings"
)

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [name] [value]",
		Short: "Get or set an editor setting",
		Long: `With no arguments, lists every known setting and its current value.
With one argument, prints that setting's current value.
With two arguments, sets it.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := resolveProfile(cmd)
			if err != nil {
				return fmt.Errorf("resolve profile: %w", err)
			}

			store, err := settings.Open(settingsPath(profile))
			if err != nil {
				return fmt.Errorf("open settings: %w", err)
			}
			defer store.Close()

			switch len(args) {
			case 0:
				return listSettings(store)
			case 1:
				def := defaultFor(args[0])
				fmt.Println(store.Get(args[0], def))
				return nil
			default:
				if err := store.Set(args[0], args[1]); err != nil {
					return fmt.Errorf("set %s: %w", args[0], err)
				}
				return nil
			}
		},
	}
}

func listSettings(store *settings.Store) error {
	current := store.All()

	seen := map[string]bool{}
	var names []string
	for _, d := range settings.KnownSettings {
		names = append(names, d.Name)
		seen[d.Name] = true
	}
	for name := range current {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%-28s = %s\n", name, store.Get(name, defaultFor(name)))
	}
	return nil
}

func defaultFor(name string) string {
	for _, d := range settings.KnownSettings {
		if d.Name == name {
			return d.Default
		}
	}
	return ""
}
