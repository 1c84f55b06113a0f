package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/genglossary/genglossary/internal/config"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "project",
	Short:   "Manage glossary projects",
}

var (
	createDocRoot     string
	createLLMProvider string
	createLLMModel    string
	createLLMBaseURL  string
)

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Register a new project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		// Fall back to an interactive form whenever the caller didn't
		// supply everything on the command line, grounded on
		// cmd/bd/create_form.go's raw-input/typed-values split.
		if name == "" || createDocRoot == "" || createLLMProvider == "" {
			raw := &projectFormInput{Name: name, DocRoot: createDocRoot, LLMProvider: createLLMProvider, LLMModel: createLLMModel}
			if err := runProjectCreateForm(raw); err != nil {
				return err
			}
			name, createDocRoot, createLLMProvider, createLLMModel = raw.Name, raw.DocRoot, raw.LLMProvider, raw.LLMModel
		}

		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		project, err := reg.Create(cmd.Context(), name, createDocRoot, createLLMProvider, createLLMModel, createLLMBaseURL)
		if err != nil {
			return err
		}

		configPath := createDocRoot + "/.genglossary/config.toml"
		if err := config.WriteDefault(configPath, createLLMProvider, createLLMModel); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not scaffold %s: %v\n", configPath, err)
		}

		return printJSON(project)
	},
}

// projectFormInput mirrors the raw/typed split of cmd/bd's
// createFormRawInput: huh binds directly to these string fields.
type projectFormInput struct {
	Name        string
	DocRoot     string
	LLMProvider string
	LLMModel    string
}

func runProjectCreateForm(raw *projectFormInput) error {
	providerOptions := []huh.Option[string]{
		huh.NewOption("Anthropic", "anthropic"),
		huh.NewOption("Ollama", "ollama"),
		huh.NewOption("OpenAI-compatible", "openai_compatible"),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Description("Unique name for this project (required)").
				Value(&raw.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Documentation root").
				Description("Directory of Markdown files to glossary-ify (required)").
				Value(&raw.DocRoot).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("doc root is required")
					}
					return nil
				}),

			huh.NewSelect[string]().
				Title("LLM provider").
				Options(providerOptions...).
				Value(&raw.LLMProvider),

			huh.NewInput().
				Title("LLM model").
				Description("Leave blank to use the provider's default").
				Value(&raw.LLMModel),
		),
	).WithTheme(huh.ThemeDracula())

	err := form.Run()
	if err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(os.Stderr, "Project creation canceled.")
			os.Exit(0)
		}
		return fmt.Errorf("form error: %w", err)
	}
	return nil
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		projects, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(projects)
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one project's registry record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		project, err := reg.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(project)
	},
}

var cloneNewName string

var projectCloneCmd = &cobra.Command{
	Use:   "clone <name>",
	Short: "Clone a project's settings under a new name with a fresh database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cloneNewName == "" {
			return fmt.Errorf("--new-name is required")
		}
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		project, err := reg.Clone(cmd.Context(), args[0], cloneNewName)
		if err != nil {
			return err
		}
		return printJSON(project)
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a project from the registry (the project database file is left on disk)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		if err := reg.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted project %q from the registry\n", args[0])
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	projectCreateCmd.Flags().StringVar(&createDocRoot, "doc-root", "", "documentation root directory")
	projectCreateCmd.Flags().StringVar(&createLLMProvider, "llm-provider", "", "anthropic, ollama, or openai_compatible")
	projectCreateCmd.Flags().StringVar(&createLLMModel, "llm-model", "", "model name (defaults to the provider's own default)")
	projectCreateCmd.Flags().StringVar(&createLLMBaseURL, "llm-base-url", "", "override the provider's base URL (ollama, openai_compatible)")

	projectCloneCmd.Flags().StringVar(&cloneNewName, "new-name", "", "name for the cloned project (required)")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectCloneCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
