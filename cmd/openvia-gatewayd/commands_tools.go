package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/internal/tools"
	"github.com/openvia/openvia/pkg/models"
)

// buildToolsCmd creates the "tools" command group.
func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the reference tools a fresh registry exposes to the LLM",
	}
	cmd.AddCommand(buildToolsListCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var skillsDir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the JSON Schema of every registered tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := agent.NewToolRegistry()
			skillSet, err := tools.LoadSkillSet(skillsDir)
			if err != nil {
				return err
			}
			if err := registry.RegisterAll([]models.ToolDefinition{
				tools.NewShellTool(),
				tools.NewReadFileTool(),
				tools.NewWriteFileTool(),
				tools.NewEditFileTool(),
				tools.NewListSkillsTool(skillSet),
				tools.NewReadSkillTool(skillSet),
			}); err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(registry.GetSchemas(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&skillsDir, "skills-dir", "", "Root directory to scan for skills")
	return cmd
}
