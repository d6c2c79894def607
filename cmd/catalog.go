package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/earthboundkid/versioninfo/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/rm-hull/hideaway/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCommand(s *state) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the known apps, focus-mode presets and essential apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := s.services(cmd.Context(), true)
			if err != nil {
				return err
			}
			cat := services.Composer.Catalog()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"apps":      cat.Apps(),
					"presets":   cat.Presets(),
					"essential": cat.EssentialApps(),
				})
			}

			printApps(out, cat)
			fmt.Fprintln(out)
			printPresets(out, cat.Presets())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func borderlessTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func printApps(w io.Writer, cat *catalog.Catalog) {
	table := borderlessTable(w)
	table.SetHeader([]string{"App", "Bundle ID", "Category", "Websites"})
	for _, app := range cat.Apps() {
		table.Append([]string{app.Name, app.BundleID, app.Category, strings.Join(app.Domains, ", ")})
	}
	table.Render()
}

func printPresets(w io.Writer, presets []catalog.Preset) {
	table := borderlessTable(w)
	table.SetHeader([]string{"Focus mode", "Apps"})
	for _, preset := range presets {
		table.Append([]string{preset.Name, strings.Join(preset.Apps, ", ")})
	}
	table.Render()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hideaway %s (revision %s, built %s)\n",
				versioninfo.Version, versioninfo.Revision, versioninfo.LastCommit.Format("2006-01-02"))
		},
	}
}
