package tools

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"
)

// SystemInfoTool reports basic host information.
type SystemInfoTool struct{}

func (t *SystemInfoTool) Name() string          { return "system_info" }
func (t *SystemInfoTool) Risk() RiskLevel       { return RiskLow }
func (t *SystemInfoTool) RequiresConfirm() bool { return false }

func (t *SystemInfoTool) Description() string {
	return "Report basic information about the host: OS, architecture, hostname, working directory, local time."
}

func (t *SystemInfoTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *SystemInfoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	hostname, _ := os.Hostname()
	wd, _ := os.Getwd()
	return fmt.Sprintf("os: %s\narch: %s\nhostname: %s\ncwd: %s\ntime: %s",
		runtime.GOOS, runtime.GOARCH, hostname, wd,
		time.Now().Format(time.RFC3339)), nil
}
