//go:build !windows

package main

import "errors"

// ErrUnsupportedPlatform is returned by the autorun hooks on non-Windows
// builds: cmd.exe's AutoRun registry key has no cross-platform analogue.
var ErrUnsupportedPlatform = errors.New("autorun: unsupported on this platform")

func setAutoRun(commandLine string) error { return ErrUnsupportedPlatform }
func clearAutoRun() error                 { return ErrUnsupportedPlatform }
func getAutoRun() (string, error)          { return "", ErrUnsupportedPlatform }
