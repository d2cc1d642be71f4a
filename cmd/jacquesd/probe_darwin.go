//go:build darwin

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

// newFocusProbe asks System Events for the frontmost application's unix
// process id, mirroring internal/adapter/adapter_darwin.go's osascript
// idiom without importing its unexported helpers.
func newFocusProbe() func() ([]string, error) {
	return func() ([]string, error) {
		out, err := runOsascript(`
tell application "System Events"
	set frontApp to first application process whose frontmost is true
	return unix id of frontApp
end tell`)
		if err != nil {
			return nil, err
		}
		pid := strings.TrimSpace(out)
		if pid == "" {
			return nil, nil
		}
		return []string{fmt.Sprintf("PID:%s", pid)}, nil
	}
}

func runOsascript(script string) (string, error) {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
