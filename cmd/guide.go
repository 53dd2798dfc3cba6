package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/phaseguide/internal/config"
	"github.com/zjrosen/phaseguide/internal/guide"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/presentation"
)

var (
	setDefaultFlag bool
	userInputFlag  string
	contextFlag    string
	reasonFlag     string
	confirmFlag    bool
)

var startCmd = &cobra.Command{
	Use:   "start [workflow]",
	Short: "Start a development conversation on the current branch",
	Long: `Start a development conversation for the current branch of the project.

Without an argument the configured default workflow is used. If a conversation
already exists for the branch it is returned unchanged.

Examples:
  phaseguide start epcc
  phaseguide start waterfall --set-default
  phaseguide start --pretty`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime, out *presentation.Formatter) error {
			resp, err := rt.guide.Start(ctx, guide.StartRequest{ProjectPath: rt.project, Workflow: name})
			if err != nil {
				return err
			}
			if setDefaultFlag && name != "" {
				target := configFileUsed
				if target == "" {
					target = paths.ConfigPath(rt.project)
				}
				if err := config.SaveDefaultWorkflow(target, name); err != nil {
					return fmt.Errorf("saving default workflow: %w", err)
				}
				log.Info(log.CatConfig, "default workflow saved", "path", target, "workflow", name)
			}
			return out.FormatResponse(resp)
		})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the instructions for the current phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime, out *presentation.Formatter) error {
			resp, err := rt.guide.Advance(ctx, guide.AdvanceRequest{
				ProjectPath: rt.project,
				Context:     contextFlag,
				UserInput:   userInputFlag,
			})
			if err != nil {
				return err
			}
			return out.FormatResponse(resp)
		})
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump <phase>",
	Short: "Move the conversation to a phase of its workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime, out *presentation.Formatter) error {
			resp, err := rt.guide.Jump(ctx, guide.JumpRequest{
				ProjectPath: rt.project,
				TargetPhase: args[0],
				Reason:      reasonFlag,
			})
			if err != nil {
				return err
			}
			return out.FormatResponse(resp)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the conversation state and plan file of the current branch",
	Long: `Delete the conversation state and plan file of the current branch.

Interaction logs are kept and marked deleted. --confirm is required.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime, out *presentation.Formatter) error {
			summary, err := rt.guide.Reset(ctx, guide.ResetRequest{
				ProjectPath: rt.project,
				Confirm:     confirmFlag,
				Reason:      reasonFlag,
			})
			if err != nil {
				return err
			}
			return out.FormatReset(summary)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Show the current workflow state and plan file progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime, out *presentation.Formatter) error {
			resp, err := rt.guide.Resume(ctx, guide.ResumeRequest{ProjectPath: rt.project})
			if err != nil {
				return err
			}
			return out.FormatResume(resp)
		})
	},
}

func init() {
	startCmd.Flags().BoolVar(&setDefaultFlag, "set-default", false, "save the workflow as default_workflow in the config file")
	nextCmd.Flags().StringVar(&userInputFlag, "user-input", "", "latest user message, recorded in the interaction log")
	nextCmd.Flags().StringVar(&contextFlag, "context", "", "situation summary, recorded in the interaction log")
	jumpCmd.Flags().StringVar(&reasonFlag, "reason", "", "why the phase is changing")
	resetCmd.Flags().StringVar(&reasonFlag, "reason", "", "why the conversation is reset")
	resetCmd.Flags().BoolVar(&confirmFlag, "confirm", false, "confirm the reset")

	rootCmd.AddCommand(startCmd, nextCmd, jumpCmd, resetCmd, resumeCmd)
}

// withRuntime builds the runtime and output formatter, runs fn and closes
// the runtime.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, out *presentation.Formatter) error) (err error) {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)
	defer func() {
		if closeErr := rt.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	return fn(ctx, rt, out)
}

func newFormatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	w := cmd.OutOrStdout()
	if !prettyFlag {
		return presentation.NewFormatter(w), nil
	}
	style := "dark"
	if w != os.Stdout {
		style = "notty"
	}
	r, err := presentation.NewRenderer(100, style)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return presentation.NewPrettyFormatter(w, r), nil
}
