//go:build windows

package main

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const autoRunKeyPath = `Software\Microsoft\Command Processor`

func setAutoRun(commandLine string) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, autoRunKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", autoRunKeyPath, err)
	}
	defer key.Close()

	return key.SetStringValue("AutoRun", commandLine)
}

func clearAutoRun() error {
	key, err := registry.OpenKey(registry.CURRENT_USER, autoRunKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", autoRunKeyPath, err)
	}
	defer key.Close()

	if err := key.DeleteValue("AutoRun"); err != nil && err != registry.ErrNotExist {
		return err
	}
	return nil
}

func getAutoRun() (string, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, autoRunKeyPath, registry.QUERY_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return "", nil
		}
		return "", fmt.Errorf("open %s: %w", autoRunKeyPath, err)
	}
	defer key.Close()

	value, _, err := key.GetStringValue("AutoRun")
	if err == registry.ErrNotExist {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
