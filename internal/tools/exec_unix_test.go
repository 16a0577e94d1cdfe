// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package tools

import (
	"os/exec"
	"testing"
)

func TestConfigureProcessGroup(t *testing.T) {
	cmd := exec.Command("echo", "hello")
	configureProcessGroup(cmd)

	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Error("configureProcessGroup should place the child in its own process group")
	}
	if cmd.Cancel == nil {
		t.Error("configureProcessGroup should install a group-wide kill")
	}
	// Cancel before start is a no-op, not a panic.
	if err := cmd.Cancel(); err != nil {
		t.Errorf("Cancel() before start = %v, want nil", err)
	}
}
