package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/genglossary/genglossary/internal/mdexport"
	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/store"
	"github.com/spf13/cobra"
)

var glossaryCmd = &cobra.Command{
	Use:     "glossary",
	GroupID: "glossary",
	Short:   "Work with a project's generated glossary",
}

var (
	exportPreview bool
	exportOut     string
	exportTable   string
)

var glossaryExportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Render a project's glossary as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()

		project, err := reg.Get(ctx, args[0])
		if err != nil {
			return err
		}

		var markdown string
		err = store.WithConnection(ctx, project.DBPath, func(conn *store.Connection) error {
			entries, err := (repo.Glossary{}).List(ctx, conn.DB, exportTable)
			if err != nil {
				return err
			}
			markdown, err = mdexport.String(entries)
			return err
		})
		if err != nil {
			return err
		}

		if exportOut != "" {
			if err := os.WriteFile(exportOut, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", exportOut, err)
			}
			fmt.Println(styleSuccess("wrote ") + exportOut)
		}

		if exportPreview || exportOut == "" {
			fmt.Print(renderPreview(markdown))
		}
		return nil
	},
}

// renderPreview styles markdown for the terminal, grounded on the
// glamour.NewTermRenderer/WithAutoStyle idiom used for chat transcript
// rendering elsewhere in the corpus. Falls back to the raw Markdown if
// the renderer cannot be built or rendering fails.
func renderPreview(markdown string) string {
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

var styleSuccess = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")).Render

func init() {
	glossaryExportCmd.Flags().BoolVar(&exportPreview, "preview", false, "render to the terminal with glamour even when --out is set")
	glossaryExportCmd.Flags().StringVar(&exportOut, "out", "", "write the Markdown to this file instead of (or in addition to) the terminal")
	glossaryExportCmd.Flags().StringVar(&exportTable, "table", "glossary_refined", "glossary_refined or glossary_provisional")

	glossaryCmd.AddCommand(glossaryExportCmd)
	rootCmd.AddCommand(glossaryCmd)
}
