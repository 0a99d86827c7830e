// Command clink is the loader CLI: injects the editor module into a
// running shell, and administers its settings and history out of
// process via the same profile directory the injected module reads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clink",
		Short: "Clink - a line-editing enhancement for cmd.exe",
		Long: `clink injects a completion/history engine into cmd.exe and other
console shells, and lets you administer it from the command line.`,
	}

	root.PersistentFlags().String("profile", "", "Profile directory (default: %LOCALAPPDATA%\\clink)")

	root.AddCommand(
		newInjectCmd(),
		newHistoryCmd(),
		newSetCmd(),
		newAutorunCmd(),
		newInfoCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clink %s\n", version)
		},
	}
}
