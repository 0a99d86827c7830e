package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// autorunCommandLine builds the cmd.exe AutoRun string that re-invokes
// this loader's inject subcommand on every new console session.
func autorunCommandLine(loaderPath, profile string) string {
	parts := []string{`"` + loaderPath + `"`, "inject", "--quiet"}
	if profile != "" {
		parts = append(parts, "--profile", `"`+profile+`"`)
	}
	return strings.Join(parts, " ")
}

func newAutorunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autorun",
		Short: "Install, remove, or show the cmd.exe AutoRun hook",
	}
	cmd.AddCommand(newAutorunInstallCmd(), newAutorunUninstallCmd(), newAutorunShowCmd())
	return cmd
}

// reportAutorunFailure logs an autorun failure to stderr rather than
// returning it as a command error: registering autorun must never break
// a shell's startup chain by making the loader exit non-zero.
func reportAutorunFailure(action string, err error) {
	fmt.Fprintf(os.Stderr, "clink: autorun %s failed: %v\n", action, err)
}

func newAutorunInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Set cmd.exe's AutoRun registry value to inject on every new shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := resolveProfile(cmd)
			if err != nil {
				reportAutorunFailure("install", err)
				return nil
			}
			exe, err := osExecutableDir()
			if err != nil {
				reportAutorunFailure("install", err)
				return nil
			}
			loaderPath := exe + `\clink.exe`
			if err := setAutoRun(autorunCommandLine(loaderPath, profile)); err != nil {
				reportAutorunFailure("install", err)
				return nil
			}
			fmt.Println("clink: autorun installed")
			return nil
		},
	}
}

func newAutorunUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Clear cmd.exe's AutoRun registry value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clearAutoRun(); err != nil {
				reportAutorunFailure("uninstall", err)
				return nil
			}
			fmt.Println("clink: autorun removed")
			return nil
		},
	}
}

func newAutorunShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current AutoRun registry value",
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := getAutoRun()
			if err != nil {
				reportAutorunFailure("show", err)
				return nil
			}
			if current == "" {
				fmt.Println("(not set)")
				return nil
			}
			fmt.Println(current)
			return nil
		},
	}
}
