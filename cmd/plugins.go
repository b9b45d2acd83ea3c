package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"simplebot/pkg/config"
	"simplebot/pkg/plugin"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the plugins built into this binary",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, _, ok := setup("cmd.plugins")
		if !ok {
			return
		}

		printPlugins(cmd.OutOrStdout(), pluginRows(plugin.Default(), cfg))
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

type pluginRow struct {
	name    string
	version string
	status  string
	summary string
}

func pluginRows(catalog *plugin.Catalog, cfg *config.Config) []pluginRow {
	names := catalog.Names()
	rows := make([]pluginRow, 0, len(names))

	for _, name := range names {
		row := pluginRow{name: name, status: "enabled"}
		if slices.Contains(cfg.Plugins.Disabled, name) {
			row.status = "disabled"
			rows = append(rows, row)
			continue
		}

		p, err := catalog.Build(name, cfg)
		switch {
		case errors.Is(err, plugin.ErrSkip):
			row.status = "skipped"
			row.summary = err.Error()
		case err != nil:
			row.status = "failed"
			row.summary = err.Error()
		default:
			info := p.Info()
			row.version = info.Version
			row.summary = info.Description
		}
		rows = append(rows, row)
	}

	return rows
}

func printPlugins(w io.Writer, rows []pluginRow) {
	nameStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("44")).Width(12)
	statusStyles := map[string]lipgloss.Style{
		"enabled":  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		"disabled": lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		"skipped":  lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
		"failed":   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}

	for _, row := range rows {
		status := statusStyles[row.status].Width(9).Render(row.status)
		line := strings.TrimSpace(fmt.Sprintf("%s %s %-6s %s", nameStyle.Render(row.name), status, row.version, row.summary))
		fmt.Fprintln(w, line)
	}
}
