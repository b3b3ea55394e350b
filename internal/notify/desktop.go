package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/physical-mcp/engine/internal/core"
)

// DesktopChannel delivers an OS-native notification (spec §4.10,
// text only). No Go library for native notification centers appears
// anywhere in the retrieved pack, so this shells out to each
// platform's own notifier binary, the same subprocess idiom
// internal/capture.Source already uses for ffmpeg.
type DesktopChannel struct {
	// runner is overridable in tests; defaults to exec.CommandContext.
	runner func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewDesktopChannel() *DesktopChannel {
	return &DesktopChannel{runner: exec.CommandContext}
}

func (c *DesktopChannel) Kind() core.ChannelKind { return core.ChannelDesktop }

func (c *DesktopChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	title := fmt.Sprintf("[%s] %s", event.Priority, event.RuleName)
	body := sanitizeUTF8(messageText(event, target))

	run := c.runner
	if run == nil {
		run = exec.CommandContext
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		cmd = run(ctx, "osascript", "-e", script)
	case "windows":
		cmd = run(ctx, "powershell", "-NoProfile", "-Command",
			fmt.Sprintf("[System.Windows.Forms.MessageBox]::Show(%q, %q)", body, title))
	default:
		cmd = run(ctx, "notify-send", title, body)
	}
	return cmd.Run()
}
