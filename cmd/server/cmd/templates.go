package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
)

func newTemplatesCommand(flags *globalFlags) *cobra.Command {
	var (
		file   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Print the event template catalog",
		Long: `Print the built-in event templates merged with an optional YAML file.

The file comes from --file, then TEMPLATES_FILE, then the templates.file key
of --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = os.Getenv("TEMPLATES_FILE")
			}
			if path == "" && flags.configPath != "" {
				cfg, err := flags.loadConfig()
				if err != nil {
					return fmt.Errorf("config error: %w", err)
				}
				path = cfg.Templates.File
			}

			catalog, err := templates.Load(path)
			if err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), catalog, format)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML templates file")
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, json)")
	return cmd
}

func printTemplates(out io.Writer, catalog *templates.Catalog, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.List())
	case "table":
	default:
		return fmt.Errorf("unknown format %q (must be table or json)", format)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Type", "Name", "Hours", "Approval", "Virtual", "Description"})
	for _, tmpl := range catalog.List() {
		t.AppendRow(table.Row{
			string(tmpl.Type),
			tmpl.Name,
			strconv.Itoa(tmpl.DefaultDurationHours),
			yesNo(tmpl.RequireRSVPApproval),
			yesNo(tmpl.IsVirtual),
			tmpl.Description,
		})
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
