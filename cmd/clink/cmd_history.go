package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clinkgo/clink/internal/history"
	"github.com/clinkgo/clink/internal/settings"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or edit the on-disk command history",
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryAddCmd(),
		newHistoryDeleteCmd(),
		newHistoryExpandCmd(),
		newHistoryCompactCmd(),
		newHistoryClearCmd(),
	)
	return cmd
}

func openHistoryDB(cmd *cobra.Command) (*history.DB, error) {
	profile, err := resolveProfile(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	store, err := settings.Open(settingsPath(profile))
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	opts := history.Options{
		DupeMode: history.ParseDupeMode(store.Get("history.dupe_mode", "erase_prev")),
		MaxLines: store.GetInt("history.max_lines", history.DefaultMaxHistory),
		Shared:   true,
	}
	return history.Open(profile, 0, opts, nil)
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every visible history entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			entries, err := db.Iter()
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			for _, e := range entries {
				fmt.Printf("%d\t%s\n", e.ID, e.Line)
			}
			return nil
		},
	}
}

func newHistoryAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <line>",
		Short: "Append a line to the shared history bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			if _, err := db.Append(args[0]); err != nil {
				return fmt.Errorf("add history entry: %w", err)
			}
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one entry by the id printed by 'history list'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("parse history id %q: %w", args[0], err)
			}

			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			if err := db.Remove(history.LineID(raw)); err != nil {
				return fmt.Errorf("delete history entry: %w", err)
			}
			return nil
		},
	}
}

func newHistoryExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <line>",
		Short: "Print the result of bang-history substitution against a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			entries, err := db.Iter()
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}

			expanded, err := history.Expand(args[0], entries, history.ExpandNotInAnyQuotes)
			if err != nil {
				return fmt.Errorf("expand: %w", err)
			}
			fmt.Println(expanded)
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every history entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			if err := db.Clear(); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			fmt.Println("History cleared.")
			return nil
		},
	}
}

func newHistoryCompactCmd() *cobra.Command {
	var unique bool
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the master history bank, dropping tombstoned and removed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistoryDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close(false)

			if err := db.Compact(true, unique); err != nil {
				return fmt.Errorf("compact history: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unique, "unique", false, "also drop duplicate lines while compacting")
	return cmd
}
