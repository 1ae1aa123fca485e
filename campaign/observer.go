package campaign

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gitlab.uncharted.software/WM/lora-campaign/comfy"
	"go.uber.org/zap"
)

// Observer receives campaign progress.
type Observer interface {
	Started(name string, total int)
	Item(sub Submission)
	Progress(count, total int)
	Finished(summary Summary)
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Started(name string, total int) {
	for _, o := range m {
		o.Started(name, total)
	}
}

func (m MultiObserver) Item(sub Submission) {
	for _, o := range m {
		o.Item(sub)
	}
}

func (m MultiObserver) Progress(count, total int) {
	for _, o := range m {
		o.Progress(count, total)
	}
}

func (m MultiObserver) Finished(summary Summary) {
	for _, o := range m {
		o.Finished(summary)
	}
}

// Percent is the integer completion percentage.
func Percent(count, total int) int {
	if total <= 0 {
		return 100
	}
	return count * 100 / total
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// ConsoleObserver writes progress lines for a person watching a terminal.
type ConsoleObserver struct {
	Out io.Writer
	// Every limits progress lines to every N items.
	Every int
}

func (c *ConsoleObserver) Started(name string, total int) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(c.Out, "\n%s\n%s\n%s\n", rule, headerStyle.Render(fmt.Sprintf("Campaign %s: %d submissions", name, total)), rule)
}

func (c *ConsoleObserver) Item(sub Submission) {
	switch {
	case sub.Err != nil:
		fmt.Fprintf(c.Out, "  %s %s: %v\n", failStyle.Render("Failed:"), sub.Description, sub.Err)
	case sub.Outcome == comfy.OutcomeFailed || sub.Outcome == comfy.OutcomeTimedOut:
		fmt.Fprintf(c.Out, "  %s %s (ID: %s) %s %s\n", failStyle.Render("Render "+string(sub.Outcome)+":"), sub.Description, shortID(sub.JobID), dimStyle.Render(sub.Prefix), sub.Detail)
	default:
		fmt.Fprintf(c.Out, "  %s %s (ID: %s) %s\n", okStyle.Render("Queued:"), sub.Description, shortID(sub.JobID), dimStyle.Render(sub.Prefix))
	}
}

func (c *ConsoleObserver) Progress(count, total int) {
	if c.Every > 1 && count%c.Every != 0 && count != total {
		return
	}
	fmt.Fprintf(c.Out, "  Progress: %d/%d (%d%%)\n", count, total, Percent(count, total))
}

func (c *ConsoleObserver) Finished(summary Summary) {
	fmt.Fprintf(c.Out, "\nCampaign %s complete: %d attempted, %d queued, %d succeeded, %d failed, %d skipped\n",
		summary.Campaign, summary.Attempted, summary.Submitted, summary.Succeeded, summary.Failed, summary.Skipped)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// LogObserver records campaign progress in the structured log.
type LogObserver struct {
	Logger *zap.SugaredLogger
}

func (l *LogObserver) Started(name string, total int) {
	l.Logger.Infow("campaign started", "campaign", name, "total", total)
}

func (l *LogObserver) Item(sub Submission) {
	fields := []interface{}{
		"campaign", sub.Campaign,
		"job_id", sub.JobID,
		"prefix", sub.Prefix,
		"seed", sub.Seed,
		"outcome", sub.Outcome,
	}
	if sub.Err != nil {
		l.Logger.Warnw("submission failed", append(fields, "error", sub.Err.Error())...)
		return
	}
	l.Logger.Infow("submission", fields...)
}

func (l *LogObserver) Progress(count, total int) {
	l.Logger.Debugw("campaign progress", "count", count, "total", total, "percent", Percent(count, total))
}

func (l *LogObserver) Finished(summary Summary) {
	l.Logger.Infow("campaign finished",
		"campaign", summary.Campaign,
		"attempted", summary.Attempted,
		"submitted", summary.Submitted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"canceled", summary.Canceled)
}
