package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"bankledger/internal/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// New builds a slog.Logger backed by charmbracelet/log and installs it as the default.
func New(cfg *config.LogConfig) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

func NewWithWriter(w io.Writer, cfg *config.LogConfig) *slog.Logger {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	if cfg.Format == "json" {
		formatter = log.JSONFormatter
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	handler.SetStyles(styles())

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	errColor := lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	warnColor := lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}

	s.Levels[log.ErrorLevel] = lipgloss.NewStyle().SetString("ERROR").Bold(true).Foreground(errColor)
	s.Levels[log.WarnLevel] = lipgloss.NewStyle().SetString("WARN").Bold(true).Foreground(warnColor)
	s.Keys["err"] = lipgloss.NewStyle().Foreground(errColor)
	s.Values["err"] = lipgloss.NewStyle().Bold(true)
	s.Keys["account"] = lipgloss.NewStyle().Foreground(warnColor)
	return s
}
