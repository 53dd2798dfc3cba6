package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/phaseguide/internal/config"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect available workflows",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bundled and project-local workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := projectPath(cfg)
		if err != nil {
			return err
		}
		list, err := newCatalog(cfg).ListAvailable(contextOf(cmd), project)
		if err != nil {
			return err
		}
		out, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		return out.FormatWorkflows(list)
	},
}

var workflowsValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate workflow documents",
	Long: `Load each workflow document and report structural errors: missing fields,
transitions to undeclared states, and transitions without a reason.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			wf, err := workflow.LoadFile(path)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d phases)\n", path, wf.Name, len(wf.Phases()))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d workflow document(s) invalid", failed, len(args))
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to <project>/.phaseguide/config.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := projectPath(cfg)
		if err != nil {
			return err
		}
		path := paths.ConfigPath(project)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	workflowsCmd.AddCommand(workflowsListCmd, workflowsValidateCmd)
	rootCmd.AddCommand(workflowsCmd, initCmd)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
