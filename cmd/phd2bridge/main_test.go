package main

import (
	"context"
	"os"
	"testing"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("default when env unset", func(t *testing.T) {
		os.Unsetenv("PHD2BRIDGE_CONFIG")
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("PHD2BRIDGE_CONFIG", "/etc/phd2bridge/config.yaml")
		if got := getConfigPath(); got != "/etc/phd2bridge/config.yaml" {
			t.Errorf("getConfigPath() = %q, want override", got)
		}
	})
}

func TestRunFailsWithoutConfig(t *testing.T) {
	t.Setenv("PHD2BRIDGE_CONFIG", "/nonexistent/config.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := run(ctx); err == nil {
		t.Fatal("run() succeeded with a missing config file")
	}
}
