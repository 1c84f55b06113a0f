// Command genglossary is the CLI front end for the glossary pipeline
// (spec §4.14): project registry CRUD, run control, the embedded HTTP
// server, and Markdown glossary export. Subcommands live one-per-file
// and register themselves onto rootCmd from an init(), grouped with
// cobra's GroupID the same way cmd/bd groups its issue-tracker commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	registryDBPath string
	projectsDir    string
)

var rootCmd = &cobra.Command{
	Use:   "genglossary",
	Short: "Generate and maintain a project glossary from its documentation",
	Long: `genglossary runs a four-stage LLM pipeline (extract, generate, review,
refine) over a project's Markdown documentation and keeps the resulting
glossary in a per-project SQLite database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "project", Title: "Project commands:"},
		&cobra.Group{ID: "run", Title: "Run commands:"},
		&cobra.Group{ID: "server", Title: "Server commands:"},
		&cobra.Group{ID: "glossary", Title: "Glossary commands:"},
	)

	home, _ := os.UserHomeDir()
	defaultRegistryDB := ""
	defaultProjectsDir := ""
	if home != "" {
		defaultRegistryDB = home + "/.genglossary/registry.db"
		defaultProjectsDir = home + "/.genglossary/projects"
	}

	rootCmd.PersistentFlags().StringVar(&registryDBPath, "registry-db", defaultRegistryDB, "path to the registry database")
	rootCmd.PersistentFlags().StringVar(&projectsDir, "projects-dir", defaultProjectsDir, "base directory for new project databases")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
