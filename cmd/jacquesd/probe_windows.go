//go:build windows

package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

// newFocusProbe shells to the same PowerShell + user32 idiom
// internal/adapter/adapter_windows.go uses for window placement, asking
// for the foreground window's owning process id instead.
func newFocusProbe() func() ([]string, error) {
	return func() ([]string, error) {
		out, err := runPowershell(`
Add-Type @"
using System;
using System.Runtime.InteropServices;
public class Win32 {
  [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
  [DllImport("user32.dll")] public static extern uint GetWindowThreadProcessId(IntPtr hWnd, out uint lpdwProcessId);
}
"@
$hwnd = [Win32]::GetForegroundWindow()
$procId = 0
[Win32]::GetWindowThreadProcessId($hwnd, [ref]$procId) | Out-Null
Write-Output $procId`)
		if err != nil {
			return nil, err
		}
		pid := strings.TrimSpace(out)
		if pid == "" || pid == "0" {
			return nil, nil
		}
		return []string{fmt.Sprintf("CONPTY:%s", pid), fmt.Sprintf("PID:%s", pid)}, nil
	}
}

func runPowershell(script string) (string, error) {
	path, err := exec.LookPath("powershell")
	if err != nil {
		path, err = exec.LookPath("pwsh")
		if err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "-NoProfile", "-NonInteractive", "-Command", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("powershell: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
