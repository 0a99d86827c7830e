package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clinkgo/clink/internal/inject"
)

func newInjectCmd() *cobra.Command {
	var pid int
	var modulePath string
	var noHostCheck bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Load the editor module into a running shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := resolveProfile(cmd)
			if err != nil {
				return fmt.Errorf("resolve profile: %w", err)
			}

			target := uint32(pid)
			if target == 0 {
				target, err = inject.GetParentPID()
				if err != nil {
					return fmt.Errorf("resolve target pid: %w", err)
				}
			}

			dllPath := modulePath
			if dllPath == "" {
				exe, err := osExecutableDir()
				if err != nil {
					return fmt.Errorf("locate module: %w", err)
				}
				dllPath = filepath.Join(exe, inject.ModuleFileName)
			}

			if !noHostCheck {
				if _, err := inject.DLLVersion(dllPath); err != nil {
					return fmt.Errorf("read module version: %w", err)
				}
			}

			opts := inject.Options{
				ProfilePath: profile,
				NoHostCheck: noHostCheck,
				Quiet:       quiet,
			}

			if err := inject.Inject(target, dllPath, opts); err != nil {
				return fmt.Errorf("inject into pid %d: %w", target, err)
			}

			if !quiet {
				fmt.Printf("clink: injected into pid %d (profile %s)\n", target, profile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "target process id (default: loader's parent process)")
	cmd.Flags().StringVar(&modulePath, "module", "", "path to the editor module DLL (default: alongside this binary)")
	cmd.Flags().BoolVar(&noHostCheck, "no-host-check", false, "skip reading the module's version resource before injecting")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress confirmation output")
	return cmd
}
