package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/config"
	"tools.zach/dev/cordsync/internal/diagnose"
	"tools.zach/dev/cordsync/internal/discord"
	"tools.zach/dev/cordsync/internal/extensions"
	"tools.zach/dev/cordsync/internal/logger"
)

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// diagnoseEnv wires the real system into a [diagnose.Env].
func diagnoseEnv(cfg *config.Config, home string, log *slog.Logger) diagnose.Env {
	fsys := afero.NewOsFs()

	dirs := make([]string, 0, len(cfg.Diagnose.ExtensionDirs))
	for _, d := range cfg.Diagnose.ExtensionDirs {
		dirs = append(dirs, expandHome(d, home))
	}
	if len(dirs) == 0 {
		dirs = extensions.DefaultDirs(home)
	}

	var ids []string
	if len(cfg.Diagnose.ConflictingIDs) > 0 {
		ids = cfg.Diagnose.ConflictingIDs
	}

	return diagnose.Env{
		Platform:  diagnose.DetectPlatform(),
		Processes: diagnose.SystemProcesses{},
		Fs:        fsys,
		Endpoints: discord.Endpoints(),
		Extensions: extensions.Registry{
			Fs:   fsys,
			Dirs: dirs,
			Log:  logger.ForComponent(log, "extensions"),
		},
		ConflictingIDs: ids,
	}
}

// expandHome replaces a leading "~" with home.
func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

// logReport waits for the diagnosis and logs every issue it finds.
func logReport(ctx context.Context, svc *diagnose.Service, appName string, log *slog.Logger) {
	report, err := svc.Report(ctx)
	if err != nil {
		log.Debug("diagnosis incomplete", "error", err)
	}
	for _, issue := range report.Issues(appName) {
		log.Warn("presence may not appear", "reason", issue)
	}
	log.Info("environment diagnosed", "report", report.String())
}

// ///////////////////////////////////////////////
// Report Rendering
// ///////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Width(14).Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	issueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type stateLine struct {
	label string
	value fmt.Stringer
	msg   string
}

// renderReport formats report for the -diagnose command.
func renderReport(report diagnose.Report, appName string) string {
	lines := []stateLine{
		{"Discord", report.Client, report.Client.Message(appName)},
		{"Extensions", report.Integrations, report.Integrations.Message(appName)},
		{"Host", report.Host, report.Host.Message(appName)},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(appName+" environment"))
	b.WriteString("\n\n")
	for _, l := range lines {
		style := okStyle
		if l.msg != "" {
			style = issueStyle
		}
		b.WriteString(labelStyle.Render(l.label))
		b.WriteString(style.Render(l.value.String()))
		b.WriteString("\n")
	}

	issues := report.Issues(appName)
	if len(issues) == 0 {
		b.WriteString("\n")
		b.WriteString(okStyle.Render("No problems found."))
		return b.String()
	}

	items := make([]string, len(issues))
	for i, issue := range issues {
		items[i] = "- " + issue
	}
	b.WriteString("\n")
	b.WriteString(boxStyle.Width(80).Render(strings.Join(items, "\n")))
	return b.String()
}
