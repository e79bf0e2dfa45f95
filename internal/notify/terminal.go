package notify

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications as colored blocks.
type TerminalNotifier struct {
	out          io.Writer
	mu           sync.Mutex
	enabled      bool
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		out:          out,
		enabled:      true,
		colorEnabled: !color.NoColor,
	}
}

// SetBellEnabled enables or disables the terminal bell on breakouts.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetColorEnabled enables or disables colored output.
func (tn *TerminalNotifier) SetColorEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.colorEnabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	return tn.enabled
}

// Send writes the notification.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if tn.bellEnabled && n.Type == NotificationBreakout {
		if _, err := io.WriteString(tn.out, "\a"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(tn.out, tn.format(n))
	return err
}

func (tn *TerminalNotifier) format(n Notification) string {
	var sb strings.Builder

	header := tn.paint(headerAttrs(n.Type)...)
	stamp := ""
	if !n.Timestamp.IsZero() {
		stamp = n.Timestamp.Format("15:04:05") + "  "
	}
	sb.WriteString(header.Sprint(stamp + n.Title))
	sb.WriteString("\n")

	dim := tn.paint(color.Faint)
	for _, line := range strings.Split(n.Message, "\n") {
		if line == "" {
			continue
		}
		sb.WriteString(dim.Sprint("  " + line))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (tn *TerminalNotifier) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if tn.colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func headerAttrs(t NotificationType) []color.Attribute {
	switch t {
	case NotificationBreakout:
		return []color.Attribute{color.FgGreen, color.Bold}
	case NotificationError:
		return []color.Attribute{color.FgRed, color.Bold}
	case NotificationSummary:
		return []color.Attribute{color.FgCyan}
	default:
		return []color.Attribute{color.FgYellow, color.Bold}
	}
}
