package initializer

import (
	"io"
	"log/slog"
	"os"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	infoTxtColor  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warnTxtColor  = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	errorTxtColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	debugTxtColor = lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}
)

func setupLogger(cfg *config.Log) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

// newLogger builds the charmbracelet handler and installs it as the slog
// default. Unknown formats fall back to text.
func newLogger(w io.Writer, cfg *config.Log) *slog.Logger {
	if cfg == nil {
		cfg = &config.Log{Format: "text", TimeFormat: "2006-01-02 15:04:05"}
	}

	formatters := map[string]log.Formatter{
		"json":   log.JSONFormatter,
		"text":   log.TextFormatter,
		"logfmt": log.LogfmtFormatter,
	}
	formatter := log.TextFormatter
	if f, ok := formatters[cfg.Format]; ok {
		formatter = f
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(logStyles())

	slogger := slog.New(logger)
	slog.SetDefault(slogger)
	return slogger
}

func logStyles() *log.Styles {
	styles := log.DefaultStyles()
	levels := []struct {
		level log.Level
		icon  string
		color lipgloss.AdaptiveColor
	}{
		{log.ErrorLevel, "❌", errorTxtColor},
		{log.InfoLevel, "ℹ️", infoTxtColor},
		{log.WarnLevel, "⚠️", warnTxtColor},
		{log.DebugLevel, "🐛", debugTxtColor},
	}
	for _, l := range levels {
		styles.Levels[l.level] = lipgloss.NewStyle().
			SetString(l.icon).
			Bold(true).
			Padding(0, 1).
			Foreground(l.color)
	}

	keys := map[string]lipgloss.AdaptiveColor{
		"error":    errorTxtColor,
		"rule_id":  infoTxtColor,
		"event_id": infoTxtColor,
		"outcome":  warnTxtColor,
		"handler":  debugTxtColor,
		"caller":   debugTxtColor,
		"time":     debugTxtColor,
	}
	for k, c := range keys {
		styles.Keys[k] = lipgloss.NewStyle().Foreground(c)
		styles.Values[k] = lipgloss.NewStyle().Bold(true)
	}
	return styles
}
